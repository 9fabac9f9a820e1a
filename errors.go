package ili9341

import (
	"errors"
	"fmt"
)

var (
	// ErrHalted is returned by every operation after Halt or a hardware fault.
	ErrHalted = errors.New("ili9341: halted")
	// ErrBusy is returned when a frame transfer is still in flight.
	ErrBusy = errors.New("ili9341: frame transfer in progress")
	// ErrOutOfBounds is returned for a rectangle that is not inside the panel.
	ErrOutOfBounds = errors.New("ili9341: rectangle outside panel")
	// ErrTransferTimeout is the cause of a TransferFault raised by the chunk watchdog.
	ErrTransferTimeout = errors.New("ili9341: chunk transfer timed out")
)

// AcceleratorFault reports a fill or blit the accelerator rejected or did not
// finish in time. The frame buffer content of the target area is undefined.
type AcceleratorFault struct {
	Op  string
	Err error
}

func (e *AcceleratorFault) Error() string {
	return fmt.Sprintf("ili9341: accelerator %s: %v", e.Op, e.Err)
}

func (e *AcceleratorFault) Unwrap() error {
	return e.Err
}

// TransferFault reports a frame chunk that could not be sent.
type TransferFault struct {
	Chunk    int // Index of the failing chunk within the frame
	Offset   int // Byte offset of the chunk in the frame buffer
	Attempts int
	Err      error
}

func (e *TransferFault) Error() string {
	return fmt.Sprintf("ili9341: chunk %d at offset %d failed after %d attempt(s): %v", e.Chunk, e.Offset, e.Attempts, e.Err)
}

func (e *TransferFault) Unwrap() error {
	return e.Err
}

// IsFault reports whether err is a hardware fault that halts the pipeline.
func IsFault(err error) bool {
	var af *AcceleratorFault
	var tf *TransferFault
	return errors.As(err, &af) || errors.As(err, &tf)
}
