package transport

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
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const serialPortReadTimeout = 1 * time.Second

// SerialConfig configures SerialTransport.
type SerialConfig struct {
	DevicePath string
	BaudRate   int // 0 defaults to 115200, the Z-Wave Serial API rate
}

// SerialTransport is a Transport backed by a real USB serial port, via
// github.com/tarm/serial.
type SerialTransport struct {
	cfg    SerialConfig
	logger *zap.Logger

	mu     sync.Mutex
	port   *serial.Port
	bytes  chan []byte
	closed chan error
	once   sync.Once
}

// NewSerialTransport returns a SerialTransport that has not yet been
// opened.
func NewSerialTransport(cfg SerialConfig, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		cfg:    cfg,
		logger: logger,
		bytes:  make(chan []byte),
		closed: make(chan error, 1),
	}
}

// Open opens the serial device and starts the background read loop.
func (t *SerialTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}

	baud := t.cfg.BaudRate
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{Name: t.cfg.DevicePath, Baud: baud, ReadTimeout: serialPortReadTimeout}
	p, err := serial.OpenPort(c)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", t.cfg.DevicePath, err)
	}
	p.Flush()
	t.port = p

	go t.readLoop()
	return nil
}

func (t *SerialTransport) readLoop() {
	buf := make([]byte, 512)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			t.finish(err)
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		t.logger.Debug("transport read", zap.Binary("bytes", chunk))
		select {
		case t.bytes <- chunk:
		}
	}
}

func (t *SerialTransport) finish(err error) {
	t.once.Do(func() {
		close(t.bytes)
		t.closed <- err
		close(t.closed)
	})
}

// Write writes b in full to the serial port.
func (t *SerialTransport) Write(b []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return fmt.Errorf("transport: write on unopened port")
	}

	written := 0
	for written < len(b) {
		n, err := port.Write(b[written:])
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		written += n
	}
	return nil
}

// Bytes implements Transport.
func (t *SerialTransport) Bytes() <-chan []byte { return t.bytes }

// Closed implements Transport.
func (t *SerialTransport) Closed() <-chan error { return t.closed }

// Close closes the underlying serial port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.finish(nil)
	return err
}
