// Package dma2d models a DMA2D-class 2D blitter: a register file describing
// one fill, copy or blend over rectangular memory regions, and an engine that
// executes it asynchronously.
//
// A transfer is configured by writing a Regs value and handing it to an
// Accelerator. Start returns once the transfer is running; completion is
// observed with Poll or, when CR.TCIE is set, through the engine's completion
// callback.
//
// Field packing follows the STM32 DMA2D layout:
//
//	CR      START[0] ABORT[2] TEIE[8] TCIE[9] CEIE[13] MODE[18:16]
//	xPFCCR  CM[3:0] AM[17:16] AI[20] RBS[21] SWAP[22] ALPHA[31:24]
//	OPFCCR  CM[2:0] SB[8]
//	NLR     NL[15:0] PL[29:16]
//	xOR     LO[15:0]
//
// SWAP on a layer is an extension: it reads 16-bit pixels high byte first,
// mirroring what OPFCCR.SB does for the output.
package dma2d

import (
	"errors"
	"time"
)

// Errors returned by an Accelerator.
var (
	ErrConfig   = errors.New("dma2d: configuration error")
	ErrTimeout  = errors.New("dma2d: transfer timeout")
	ErrBusy     = errors.New("dma2d: transfer in progress")
	ErrTransfer = errors.New("dma2d: transfer error")
)

// Accelerator is a 2D blitter that runs one transfer at a time.
type Accelerator interface {
	// Start latches r and begins the transfer. The caller may reuse r
	// afterwards.
	Start(r *Regs) error
	// Poll waits for the running transfer, if any, to finish.
	Poll(timeout time.Duration) error
	// Busy reports whether a transfer is running.
	Busy() bool
}

// Regs is the transfer register file.
type Regs struct {
	CR      uint32 // Control
	FGMAR   uint32 // Foreground memory address
	FGOR    uint32 // Foreground line offset, in pixels
	BGMAR   uint32 // Background memory address
	BGOR    uint32 // Background line offset, in pixels
	FGPFCCR uint32 // Foreground pixel format and alpha control
	FGCOLR  uint32 // Foreground color for alpha-only formats, 0xRRGGBB
	BGPFCCR uint32 // Background pixel format and alpha control
	BGCOLR  uint32 // Background color for alpha-only formats, 0xRRGGBB
	OPFCCR  uint32 // Output pixel format
	OCOLR   uint32 // Output color for register to memory fills
	OMAR    uint32 // Output memory address
	OOR     uint32 // Output line offset, in pixels
	NLR     uint32 // Number of lines and pixels per line
}

// CR bits.
const (
	CRStart = 1 << 0
	CRAbort = 1 << 2
	CRTEIE  = 1 << 8
	CRTCIE  = 1 << 9
	CRCEIE  = 1 << 13

	crModeShift = 16
	crModeMask  = 0x7 << crModeShift
)

// ISR bits.
const (
	ISRTEIF = 1 << 0 // Transfer error
	ISRTCIF = 1 << 1 // Transfer complete
	ISRCEIF = 1 << 5 // Configuration error
)

// Pixel format control bits.
const (
	pfccrCMMask     = 0xF
	pfccrAMShift    = 16
	pfccrAMMask     = 0x3 << pfccrAMShift
	PFCCRAI         = 1 << 20
	PFCCRRBS        = 1 << 21
	PFCCRSwap       = 1 << 22
	pfccrAlphaShift = 24

	opfccrCMMask = 0x7
	OPFCCRSB     = 1 << 8
)

const (
	nlrNLMask  = 0xFFFF
	nlrPLShift = 16
	nlrPLMask  = 0x3FFF
	orLOMask   = 0xFFFF
)

// Mode is the transfer mode.
type Mode uint32

// Transfer modes.
const (
	ModeM2M      Mode = 0 // Memory to memory, foreground copy
	ModeM2MPFC   Mode = 1 // Memory to memory with pixel format conversion
	ModeM2MBlend Mode = 2 // Memory to memory with blending
	ModeR2M      Mode = 3 // Register to memory fill
)

// ColorMode is a pixel format.
type ColorMode uint32

// Pixel formats. Only RGB565 is valid for the output.
const (
	ARGB8888 ColorMode = 0
	RGB888   ColorMode = 1
	RGB565   ColorMode = 2
	ARGB1555 ColorMode = 3
	ARGB4444 ColorMode = 4
	L8       ColorMode = 5
	AL44     ColorMode = 6
	AL88     ColorMode = 7
	L4       ColorMode = 8
	A8       ColorMode = 9
	A4       ColorMode = 10
	A1       ColorMode = 11 // 1 bit alpha, most significant bit first
)

// AlphaMode selects how a layer's ALPHA field combines with pixel alpha.
type AlphaMode uint32

// Alpha modes.
const (
	AlphaNoModify AlphaMode = 0
	AlphaReplace  AlphaMode = 1
	AlphaMultiply AlphaMode = 2
)

// CR returns the control register value selecting m. START is not set.
func CR(m Mode) uint32 {
	return uint32(m) << crModeShift & crModeMask
}

// NLR packs pixels per line and number of lines.
func NLR(pl, nl int) uint32 {
	return uint32(pl)&nlrPLMask<<nlrPLShift | uint32(nl)&nlrNLMask
}

// PFCCR packs a layer's pixel format control register.
func PFCCR(cm ColorMode, am AlphaMode, alpha uint8) uint32 {
	return uint32(cm)&pfccrCMMask | uint32(am)<<pfccrAMShift&pfccrAMMask | uint32(alpha)<<pfccrAlphaShift
}

// OPFCCR packs the output pixel format register.
func OPFCCR(cm ColorMode, swap bool) uint32 {
	v := uint32(cm) & opfccrCMMask
	if swap {
		v |= OPFCCRSB
	}
	return v
}

// Mode returns the transfer mode selected in CR.
func (r *Regs) Mode() Mode {
	return Mode(r.CR & crModeMask >> crModeShift)
}

// Size returns the pixels per line and number of lines.
func (r *Regs) Size() (pl, nl int) {
	return int(r.NLR >> nlrPLShift & nlrPLMask), int(r.NLR & nlrNLMask)
}
