// Package feigpackets implements the Feig cVEND vendor extension to the
// core ZVT protocol: enhanced system information, firmware file transfer
// (RequestForData/WriteFile/WriteData) and host configuration changes.
package feigpackets

import (
	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets/feig/tlv"
	"github.com/EVerest/zvt/zvterr"
)

// RequestForData (0x04 0x0c) is sent by the PT while pulling a firmware
// file chunk from the ECR during a firmware update.
type RequestForData struct {
	Tlv *tlv.WriteData `zvt:"tag=0x06,length=tlv"`
}

func (*RequestForData) ControlField() (byte, byte) { return 0x04, 0x0c }

// CVendFunctionsEnhancedSystemInformationCompletion (0x06 0x0f) answers a
// CVendFunctions "enhanced system information" request with the
// terminal's device id, firmware version, terminal id and (on supported
// firmware) battery voltage and temperature readings.
type CVendFunctionsEnhancedSystemInformationCompletion struct {
	DeviceID       string `zvt:"length=fixed:8,encoding=utf8,required"`
	SwVersion      string `zvt:"length=fixed:17,encoding=utf8,required"`
	TerminalID     string `zvt:"length=fixed:8,encoding=utf8,required"`
	BatteryVoltage string `zvt:"length=custom:feigBatteryVoltage,encoding=utf8"`
	Temperature    string `zvt:"length=custom:feigTemperature,encoding=utf8"`
}

func (*CVendFunctionsEnhancedSystemInformationCompletion) ControlField() (byte, byte) {
	return 0x06, 0x0f
}

// WriteFile (0x08 0x14) opens a firmware update dialog by announcing the
// files the ECR intends to write and their sizes.
type WriteFile struct {
	Password uint64         `zvt:"length=fixed:3,encoding=bcd,required"`
	Tlv      *tlv.WriteFile `zvt:"tag=0x06,length=tlv"`
}

func (*WriteFile) ControlField() (byte, byte) { return 0x08, 0x14 }

// ChangeConfiguration (0x08 0x13) is the shared cVEND command for every
// vendor configuration flow; which flow runs depends on which nested
// fields of its Tlv are populated.
type ChangeConfiguration struct {
	Tlv tlv.ChangeConfiguration `zvt:"tag=0x06,length=tlv,required"`
}

func (*ChangeConfiguration) ControlField() (byte, byte) { return 0x08, 0x13 }

// CVendFunctions (0x0f 0xa1) invokes one of the cVEND vendor functions
// selected by Instr (e.g. enhanced system information).
type CVendFunctions struct {
	Password *uint64 `zvt:"length=fixed:3,encoding=bcd"`
	Instr    uint16  `zvt:"encoding=bigendian,required"`
}

func (*CVendFunctions) ControlField() (byte, byte) { return 0x0f, 0xa1 }

// WriteData (0x80 0x00) carries one firmware file chunk from the ECR to
// the PT. It shares its control field with the plain Ack and is only ever
// constructed and sent directly by the firmware update dialog, never
// dispatched through the command registry.
type WriteData struct {
	Tlv *tlv.WriteData `zvt:"tag=0x06,length=tlv"`
}

func (*WriteData) ControlField() (byte, byte) { return 0x80, 0x00 }

func init() {
	packet.RegisterLength("feigTemperature", temperatureLength{})
	packet.RegisterLength("feigBatteryVoltage", batteryVoltageLength{})
}

// temperatureLength decodes the cVEND enhanced-system-information
// temperature field. The manual says it is always four bytes, but some
// terminals report low temperatures using only three; this codec accepts
// either without needing a prior bugfix release of the terminal firmware.
type temperatureLength struct{}

func (temperatureLength) Serialize(int) []byte { return nil }

func (temperatureLength) Deserialize(data []byte) (int, []byte, error) {
	if len(data) < 3 {
		return 0, nil, zvterr.New(zvterr.IncompleteData)
	}
	n := len(data)
	if n > 4 {
		n = 4
	}
	return n, data, nil
}

// batteryVoltageLength decodes the optional battery-voltage field that
// only appears on newer terminal firmware. Older terminals omit it
// entirely, so this codec must peek ahead to tell whether the bytes
// belong to the voltage or to the temperature field that follows it.
type batteryVoltageLength struct{}

func (batteryVoltageLength) Serialize(int) []byte { return nil }

func (batteryVoltageLength) Deserialize(data []byte) (int, []byte, error) {
	if len(data) <= 4 {
		return 0, data, nil
	}
	return 4, data, nil
}
