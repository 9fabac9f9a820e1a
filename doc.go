// Package ili9341 drives an ILI9341 TFT panel over SPI from an off-screen
// RGB565 frame buffer.
//
// The ILI9341 is a 240×320 controller with 16-bit color. This driver keeps
// a full frame in memory, composites into it with a 2D blitter (emulated by
// package dma2d when no hardware is present) and streams it to the panel in
// bounded chunks without blocking the caller.
//
// # Pipeline
//
//   - Drawing operations (FillRect, DrawLine, WriteString, ...) take palette
//     indices and an optional alpha and write into the frame buffer.
//   - RequestUpdate starts a frame transfer and returns immediately.
//   - IsReady reports when the previous frame has gone out.
//
// Drawing while a frame is in flight is allowed. The panel may then show a
// mix of the old and new content for one frame; set Opts.SnapshotOnSend to
// send a copy taken when the frame starts instead.
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	SCK         → SPI Clock (SCLK)
//	SDI/MOSI    → SPI Data (MOSI)
//	D/C         → GPIO (any available pin)
//	CS          → SPI Chip Select
//	RESET       → Optional: GPIO for hardware reset
//	LED         → 3.3V or a PWM pin for the backlight
//
// # Basic Usage
//
//	package main
//
//	import (
//		"image"
//
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/devices/v3/ili9341"
//		"periph.io/x/devices/v3/ili9341/bitmapfont"
//		"periph.io/x/devices/v3/ili9341/palette"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//		spiBus, _ := spireg.Open("")
//		dcPin := gpioreg.ByName("GPIO25")
//
//		dev, _ := ili9341.NewSPI(spiBus, dcPin, nil) // 320×240 landscape
//		defer dev.Halt()
//
//		dev.Fill(palette.PanelBackground)
//		dev.FillRect(image.Rect(10, 10, 110, 60), palette.Blue, 0x80)
//		dev.WriteString("hello", 20, 20, bitmapfont.Font7x13, palette.White)
//		dev.RequestUpdate()
//	}
//
// # Colors
//
// Drawing calls name colors by palette.Index. The default palette holds the
// user interface colors; a custom palette may be passed in Opts.Palette.
// Indices without an entry draw black.
//
// The frame buffer is a *rgb565.Image and implements draw.Image, so any Go
// image can be drawn into it. Draw does that and requests an update, which
// makes Dev a display.Drawer.
//
// # Chunked Transfer
//
// A 320×240 frame is 153600 bytes, more than one DMA transfer can carry. The
// transport splits it into chunks of at most Opts.MaxChunk bytes, cut on
// Opts.ChunkAlign boundaries, and sends them one after the other. A failed
// chunk is retried with exponential backoff. A chunk that keeps failing, or
// that does not complete within Opts.ChunkTimeout, halts the device:
// further calls return ErrHalted.
//
// # TinyGo Drivers
//
// Dev.Displayer returns a drivers.Displayer, so packages written for the
// TinyGo drivers ecosystem such as tinyfont can draw into the frame buffer.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/ILI9341.pdf
package ili9341
