// Package device enumerates Z-Wave device and command classification
// constants shared across the message and cc layers.
package device

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

// Basic Device Class.
const (
	BasicTypeController       uint8 = 0x01
	BasicTypeStaticController uint8 = 0x02
	BasicTypeSlave            uint8 = 0x03
	BasicTypeRoutingSlave     uint8 = 0x04
)

// Generic Device Class.
const (
	GenericTypeGenericController  uint8 = 0x01
	GenericTypeStaticController   uint8 = 0x02
	GenericTypeAVControlPoint     uint8 = 0x03
	GenericTypeDisplay            uint8 = 0x04
	GenericTypeNetworkExtender    uint8 = 0x05
	GenericTypeAppliance          uint8 = 0x06
	GenericTypeSensorNotification uint8 = 0x07
	GenericTypeSwitchThermostat   uint8 = 0x08
	GenericTypeWindowCovering     uint8 = 0x09
	GenericTypeRepeaterSlave      uint8 = 0x0F
	GenericTypeSwitchBinary       uint8 = 0x10
	GenericTypeSwitchMultiLevel   uint8 = 0x11
	GenericTypeSwitchRemote       uint8 = 0x12
	GenericTypeSwitchToggle       uint8 = 0x13
	GenericTypeZipNode            uint8 = 0x15
	GenericTypeVentilation        uint8 = 0x16
	GenericTypeSecurityPanel      uint8 = 0x17
	GenericTypeWallController     uint8 = 0x18
	GenericTypeSensorBinary       uint8 = 0x20
	GenericTypeSensorMultiLevel   uint8 = 0x21
	GenericTypeMeterPulse         uint8 = 0x30
	GenericTypeMeter              uint8 = 0x31
	GenericTypeEntryControl       uint8 = 0x40
	GenericTypeSemiInteroperable  uint8 = 0x50
	GenericTypeSensorAlarm        uint8 = 0xA1
	GenericTypeNonInteroperable   uint8 = 0xFF
)

// Command Class identifiers. Values come from the Z-Wave application
// command class registry; only classes this core implements, or
// encapsulates, are listed.
const (
	CommandClassNoOperation            uint8 = 0x01
	CommandClassBasic                  uint8 = 0x20
	CommandClassControllerReplication  uint8 = 0x21
	CommandClassApplicationStatus      uint8 = 0x22
	CommandClassBinarySwitch           uint8 = 0x25
	CommandClassAllSwitch              uint8 = 0x27
	CommandClassMultilevelSwitch       uint8 = 0x26
	CommandClassBinarySensor           uint8 = 0x30
	CommandClassMultilevelSensor       uint8 = 0x31
	CommandClassMeter                  uint8 = 0x32
	CommandClassColorSwitch            uint8 = 0x33
	CommandClassCRC16Encap             uint8 = 0x56
	CommandClassTransportService       uint8 = 0x55
	CommandClassAssociationGroupInfo   uint8 = 0x59
	CommandClassZwavePlusInfo          uint8 = 0x5e
	CommandClassMultiChannel           uint8 = 0x60
	CommandClassSupervision            uint8 = 0x6C
	CommandClassConfiguration          uint8 = 0x70
	CommandClassAlarm                  uint8 = 0x71
	CommandClassManufacturerSpecific   uint8 = 0x72
	CommandClassFirmwareUpdateMetadata uint8 = 0x73
	CommandClassNodeNamingAndLocation  uint8 = 0x77
	CommandClassBattery                uint8 = 0x80
	CommandClassClock                  uint8 = 0x81
	CommandClassWakeup                 uint8 = 0x84
	CommandClassAssociation            uint8 = 0x85
	CommandClassVersion                uint8 = 0x86
	CommandClassSecurity               uint8 = 0x98
	CommandClassSecurity2              uint8 = 0x9F
	CommandClassMark                   uint8 = 0xef
)
