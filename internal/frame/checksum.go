package frame

import (
	"fmt"

	"github.com/adrianmo/go-nmea"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

const crc16Polynomial uint16 = 0x1021

// XOR returns the 8-bit running XOR of data.
func XOR(data []byte) byte {
	var chk byte
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// CRC16CCITT returns the CRC16-CCITT of data: polynomial 0x1021, initial
// register 0xFFFF, no final XOR, most significant bit first.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)

	for _, b := range data {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}

// Checksum renders the checksum of payload for protocol p as uppercase hex:
// two digits of XOR for Level-1, four digits of CRC16-CCITT for Level-2.
func Checksum(p telemetry.Protocol, payload string) (string, error) {
	switch p {
	case telemetry.Level1:
		// NMEA sentences use the same XOR over the bytes between '$' and '*'
		return nmea.Checksum(payload), nil
	case telemetry.Level2:
		return fmt.Sprintf("%04X", CRC16CCITT([]byte(payload))), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProtocol, p)
	}
}

// checksumWidth returns the number of hex digits of the checksum of p.
func checksumWidth(p telemetry.Protocol) int {
	if p == telemetry.Level1 {
		return 2
	}
	return 4
}
