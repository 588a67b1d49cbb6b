// Package hw implements the Linux concrete backend for the sensor driver
// traits (internal/sensor.ADC, internal/sensor.DataReadyLine) over the
// kernel's spidev and gpio-cdev character devices. No SPI/GPIO
// third-party library was found anywhere in the retrieved corpus; the
// closest analog, other_examples/jangala-dev-devicecode-go's HAL, defines
// the trait split (transactional bus vs. GPIO pin handle) this package
// fills in concretely, using golang.org/x/sys/unix for the ioctl calls —
// the same syscalls a hardware library like periph.io wraps internally.
package hw

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/elata-eeg/daqd/internal/sensor"
)

// spi ioctl requests (Linux include/uapi/linux/spi/spidev.h). Declared
// here rather than imported because no corpus package exposes them.
const (
	spiIOCWrMode        = 0x40016b01
	spiIOCWrMaxSpeedHz  = 0x40046b04
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCMessage0      = 0x40006b00
)

// SPIDevice is a thin wrapper over /dev/spidevB.C, implementing just
// enough of the Linux spidev ioctl protocol for full-duplex transfers.
type SPIDevice struct {
	f         *os.File
	speedHz   uint32
	bitsWord  uint8
	mode      uint8
}

// OpenSPI opens a spidev character device node.
func OpenSPI(path string, speedHz uint32, mode, bitsPerWord uint8) (*SPIDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hw: open %s: %w", path, err)
	}
	d := &SPIDevice{f: f, speedHz: speedHz, bitsWord: bitsPerWord, mode: mode}
	if err := d.applyConfig(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *SPIDevice) applyConfig() error {
	fd := d.f.Fd()
	if err := ioctlU8(fd, spiIOCWrMode, d.mode); err != nil {
		return fmt.Errorf("hw: set spi mode: %w", err)
	}
	if err := ioctlU8(fd, spiIOCWrBitsPerWord, d.bitsWord); err != nil {
		return fmt.Errorf("hw: set bits per word: %w", err)
	}
	if err := ioctlU32(fd, spiIOCWrMaxSpeedHz, d.speedHz); err != nil {
		return fmt.Errorf("hw: set max speed: %w", err)
	}
	return nil
}

// Transfer performs a full-duplex SPI transaction: write tx, simultaneously
// read len(tx) bytes into rx.
func (d *SPIDevice) Transfer(tx, rx []byte) error {
	if len(rx) < len(tx) {
		return fmt.Errorf("hw: rx buffer shorter than tx")
	}
	return spiTransfer(d.f.Fd(), tx, rx[:len(tx)], d.speedHz, d.bitsWord)
}

// Close releases the device node.
func (d *SPIDevice) Close() error { return d.f.Close() }

// GPIOLine wraps a single line of a /dev/gpiochipN character device,
// configured for rising-edge interrupt events (the ADC's data-ready pin).
type GPIOLine struct {
	chip   *os.File
	lineFd int
}

// OpenDataReadyLine requests event notifications on offset of the given
// gpiochip device, rising-edge triggered, matching the ADC's data-ready
// pin behavior.
func OpenDataReadyLine(chipPath string, offset uint32) (*GPIOLine, error) {
	chip, err := os.OpenFile(chipPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hw: open %s: %w", chipPath, err)
	}
	lineFd, err := requestLineEvent(chip.Fd(), offset)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("hw: request line event: %w", err)
	}
	return &GPIOLine{chip: chip, lineFd: lineFd}, nil
}

// WaitEdge blocks for a rising edge via poll(2) on the line's event fd, up
// to timeout. Implements internal/sensor.DataReadyLine.
func (g *GPIOLine) WaitEdge(ctx context.Context, timeout time.Duration) (bool, error) {
	pfd := []unix.PollFd{{Fd: int32(g.lineFd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("hw: poll gpio line: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	// Drain the event so the next poll doesn't re-fire immediately.
	var buf [16]byte
	unix.Read(g.lineFd, buf[:])
	return true, nil
}

// Close releases the line and chip file descriptors.
func (g *GPIOLine) Close() error {
	unix.Close(g.lineFd)
	return g.chip.Close()
}

var _ sensor.DataReadyLine = (*GPIOLine)(nil)
