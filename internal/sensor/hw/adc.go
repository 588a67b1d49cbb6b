package hw

import (
	"context"
	"fmt"

	"github.com/elata-eeg/daqd/internal/sensor"
)

// Command bytes for a generic 24-bit multi-channel EEG front-end ADC.
// The SPI command set differs chip to chip and exact register bring-up
// is intentionally out of scope here, so these are named placeholders a
// concrete board-support package would replace.
const (
	cmdReset      = 0x06
	cmdStart      = 0x08
	cmdStop       = 0x0A
	cmdRDATAC     = 0x10 // read-data-continuous
	cmdSDATAC     = 0x11
	cmdWriteReg   = 0x40
	regChipID     = 0x00
	expectedChipID = 0x3E
)

// SPIADC implements internal/sensor.ADC over a SPIDevice, for a 24-bit
// multi-channel ADC front-end reached over SPI.
type SPIADC struct {
	spi      *SPIDevice
	bitsPerSample int
}

// NewSPIADC wraps an already-opened SPI device.
func NewSPIADC(spi *SPIDevice) *SPIADC {
	return &SPIADC{spi: spi, bitsPerSample: 24}
}

func (a *SPIADC) Reset(ctx context.Context) error {
	tx := []byte{cmdReset}
	rx := make([]byte, len(tx))
	if err := a.spi.Transfer(tx, rx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	idTx := []byte{cmdWriteReg | regChipID, 0x00, 0x00}
	idRx := make([]byte, len(idTx))
	if err := a.spi.Transfer(idTx, idRx); err != nil {
		return fmt.Errorf("read chip id: %w", err)
	}
	if idRx[2] != expectedChipID {
		return fmt.Errorf("chip id mismatch: got 0x%02x want 0x%02x", idRx[2], expectedChipID)
	}
	return nil
}

func (a *SPIADC) Configure(cfg sensor.ChannelConfig) error {
	tx := []byte{cmdSDATAC}
	rx := make([]byte, len(tx))
	return a.spi.Transfer(tx, rx)
}

func (a *SPIADC) StartContinuous(ctx context.Context) error {
	tx := []byte{cmdStart, cmdRDATAC}
	rx := make([]byte, len(tx))
	return a.spi.Transfer(tx, rx)
}

// ReadFrame reads one 3-byte big-endian sample per channel and
// sign-extends to int32.
func (a *SPIADC) ReadFrame(ctx context.Context, buf []int32) error {
	n := len(buf)
	tx := make([]byte, n*3)
	rx := make([]byte, n*3)
	if err := a.spi.Transfer(tx, rx); err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	for i := 0; i < n; i++ {
		b := rx[i*3 : i*3+3]
		raw := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		buf[i] = signExtend24(raw)
	}
	return nil
}

func signExtend24(v uint32) int32 {
	if v&0x800000 != 0 {
		return int32(v | 0xFF000000)
	}
	return int32(v)
}

func (a *SPIADC) StopConversion(ctx context.Context) error {
	tx := []byte{cmdStop, cmdSDATAC}
	rx := make([]byte, len(tx))
	return a.spi.Transfer(tx, rx)
}

func (a *SPIADC) Close() error { return a.spi.Close() }

var _ sensor.ADC = (*SPIADC)(nil)
