package main

/*
Copyright (C) 2017 Jan Kasiak

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/driver"
	"github.com/zwavelink/corezwave/persistence"
	"github.com/zwavelink/corezwave/security"
	"github.com/zwavelink/corezwave/transport"
)

// openDriver wires a SerialTransport, an optional file-backed persistence
// store and an optional S0 SecureContext into a driver.Driver, then opens
// the transport and runs Initialize. The returned context is canceled on
// SIGINT/SIGTERM; callers that block on d.Events() should select on its
// Done() channel rather than relying on Events() to close by itself,
// since only closeFn (Driver.Close) closes that channel. The caller must
// call closeFn when done.
func openDriver(cfg fileConfig) (*driver.Driver, context.Context, func(), error) {
	port, baud := resolvePort(cfg)
	if port == "" {
		return nil, nil, nil, fmt.Errorf("zwctl: no serial port given (use --port or config.port)")
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	tr := transport.NewSerialTransport(transport.SerialConfig{DevicePath: port, BaudRate: baud}, logger.Named("transport"))

	var store persistence.Store
	if cfg.Options.PersistenceDir != "" {
		// homeID is not known until Initialize runs, so the store is
		// always opened with homeID 0: its files live under
		// <persistenceDir>/00000000 whatever network is attached.
		fs, ferr := persistence.NewFileStore(cfg.Options.PersistenceDir, 0, logger.Named("persistence"))
		if ferr != nil {
			return nil, nil, nil, fmt.Errorf("zwctl: open persistence dir %s: %w", cfg.Options.PersistenceDir, ferr)
		}
		store = fs
	}

	var secure *driver.SecureContext
	if len(cfg.Options.NetworkKey) > 0 {
		s0Keys, kerr := security.DeriveKeys(cfg.Options.NetworkKey, "zwctl S0")
		if kerr != nil {
			return nil, nil, nil, fmt.Errorf("zwctl: derive S0 keys: %w", kerr)
		}
		secure = driver.NewSecureContext(s0Keys, nil, security.ClassNone, logger.Named("security"))
	}

	d := driver.New(tr, store, secure, cfg.Options, logger.Named("driver"))

	ctx, cancel := contextWithInterrupt()
	if err := d.Open(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("zwctl: open transport: %w", err)
	}
	if err := d.Initialize(ctx); err != nil {
		cancel()
		_ = d.Close()
		return nil, nil, nil, fmt.Errorf("zwctl: initialize: %w", err)
	}

	closeFn := func() {
		cancel()
		if err := d.Close(); err != nil {
			logger.Warn("zwctl: close driver", zap.Error(err))
		}
	}
	return d, ctx, closeFn, nil
}
