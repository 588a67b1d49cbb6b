package hw

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func ioctlU8(fd uintptr, req uint, v uint8) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlU32(fd uintptr, req uint, v uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return errno
	}
	return nil
}

// spiIOCTransfer mirrors struct spi_ioc_transfer from <linux/spi/spidev.h>,
// describing one full-duplex SPI transaction for the SPI_IOC_MESSAGE(1)
// ioctl.
type spiIOCTransfer struct {
	txBuf uint64
	rxBuf uint64

	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	wordDelay   uint8
	pad         uint8
}

func spiTransfer(fd uintptr, tx, rx []byte, speedHz uint32, bitsPerWord uint8) error {
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     speedHz,
		bitsPerWord: bitsPerWord,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(spiIOCMessage0|(uint32(unsafe.Sizeof(xfer))<<16)), uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return errno
	}
	return nil
}

// gpioEventRequest mirrors struct gpioevent_request from
// <linux/gpio.h>'s legacy character-device ABI, requesting rising-edge
// notifications on one line.
type gpioEventRequest struct {
	lineOffset  uint32
	handleFlags uint32
	eventFlags  uint32
	consumer    [32]byte
	fd          int32
}

const (
	gpioHandleRequestInput    = 1 << 0
	gpioEventRequestRisingEdge = 1 << 0
	gpioGetLineEventIOCTL     = 0xc030b404
)

func requestLineEvent(chipFd uintptr, offset uint32) (int, error) {
	req := gpioEventRequest{
		lineOffset:  offset,
		handleFlags: gpioHandleRequestInput,
		eventFlags:  gpioEventRequestRisingEdge,
	}
	copy(req.consumer[:], "daqd-sensor")

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, chipFd, uintptr(gpioGetLineEventIOCTL), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return -1, errno
	}
	return int(req.fd), nil
}
