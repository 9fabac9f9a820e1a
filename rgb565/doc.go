// Package rgb565 provides the 16-bit 5/6/5 packed color format used by the
// ILI9341 panel, the frame buffer image that stores it, and the fixed-point
// alpha blend shared by the software and accelerated drawing paths.
//
// Pixels are stored big-endian, which is the order the panel expects on the
// wire, so a frame buffer can be streamed to the display without conversion.
//
// Memory layout example for a 2-pixel row:
//
//	Pixels: 0       1
//	Color:  0xF800  0x07E0
//	Bytes:  F8 00   07 E0
//
// This package provides:
//
// - Color: a packed 5/6/5 color implementing color.Color
// - Model: a color model converting standard Go colors to Color
// - Image: a draw.Image backed by a big-endian pixel buffer
// - Blend: the weighted foreground/background combination
//
// Example usage:
//
//	img := rgb565.NewImage(image.Rect(0, 0, 320, 240))
//	img.SetRGB565(10, 20, rgb565.FromRGB(0xff, 0x40, 0x10))
//	c := rgb565.Blend(rgb565.FromRGB(0xff, 0xff, 0xff), img.RGB565At(10, 20), 128)
//	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
package rgb565
