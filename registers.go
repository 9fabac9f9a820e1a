package ili9341

import (
	"errors"

	"tinygo.org/x/drivers"
)

// ILI9341 commands.
const (
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdINVOFF  = 0x20
	cmdINVON   = 0x21
	cmdGAMSET  = 0x26
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdPASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdPIXSET  = 0x3A
	cmdFRMCTR1 = 0xB1
	cmdDISCTRL = 0xB6
	cmdPWCTR1  = 0xC0
	cmdPWCTR2  = 0xC1
	cmdVMCTR1  = 0xC5
	cmdVMCTR2  = 0xC7
	cmdPWCTRA  = 0xCB
	cmdPWCTRB  = 0xCF
	cmdPGAMCTR = 0xE0
	cmdNGAMCTR = 0xE1
	cmdDTCTRA  = 0xE8
	cmdDTCTRB  = 0xEA
	cmdPWRSEQ  = 0xED
	cmdEN3G    = 0xF2
	cmdPUMPCTR = 0xF7
)

// MADCTL bits.
const (
	madctlMY  = 0x80
	madctlMX  = 0x40
	madctlMV  = 0x20
	madctlBGR = 0x08
)

// Native panel geometry.
const (
	nativeW = 240
	nativeH = 320
)

// initDelay marks an init table entry followed by a delay byte in ms.
const initDelay = 0x80

// initSequence is encoded as: cmd, nargs[|initDelay], args..., [delay].
var initSequence = []byte{
	cmdSWRESET, initDelay, 5,
	cmdPWCTRA, 5, 0x39, 0x2C, 0x00, 0x34, 0x02,
	cmdPWCTRB, 3, 0x00, 0xC1, 0x30,
	cmdDTCTRA, 3, 0x85, 0x00, 0x78,
	cmdDTCTRB, 2, 0x00, 0x00,
	cmdPWRSEQ, 4, 0x64, 0x03, 0x12, 0x81,
	cmdPUMPCTR, 1, 0x20,
	cmdPWCTR1, 1, 0x23,
	cmdPWCTR2, 1, 0x10,
	cmdVMCTR1, 2, 0x3E, 0x28,
	cmdVMCTR2, 1, 0x86,
	cmdPIXSET, 1, 0x55, // 16 bits per pixel
	cmdFRMCTR1, 2, 0x00, 0x18,
	cmdDISCTRL, 3, 0x08, 0x82, 0x27,
	cmdEN3G, 1, 0x00,
	cmdGAMSET, 1, 0x01,
	cmdPGAMCTR, 15, 0x0F, 0x31, 0x2B, 0x0C, 0x0E, 0x08, 0x4E, 0xF1, 0x37, 0x07, 0x10, 0x03, 0x0E, 0x09, 0x00,
	cmdNGAMCTR, 15, 0x00, 0x0E, 0x14, 0x03, 0x11, 0x07, 0x31, 0xC1, 0x48, 0x08, 0x0F, 0x0C, 0x31, 0x36, 0x0F,
	cmdSLPOUT, initDelay, 10,
	cmdDISPON, 0,
}

var errRotation = errors.New("ili9341: unsupported rotation")

// madctl returns the MADCTL value and the resulting width and height.
func madctl(r drivers.Rotation) (v byte, w, h int, err error) {
	switch r {
	case drivers.Rotation0:
		return madctlMX | madctlBGR, nativeW, nativeH, nil
	case drivers.Rotation90:
		return madctlMV | madctlBGR, nativeH, nativeW, nil
	case drivers.Rotation180:
		return madctlMY | madctlBGR, nativeW, nativeH, nil
	case drivers.Rotation270:
		return madctlMX | madctlMY | madctlMV | madctlBGR, nativeH, nativeW, nil
	}
	return 0, 0, 0, errRotation
}
