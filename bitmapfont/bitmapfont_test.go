package bitmapfont

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/tinyfont"
)

func TestFont7x13Geometry(t *testing.T) {
	t.Parallel()

	f := Font7x13
	assert.Equal(t, 7, f.Width)
	assert.Equal(t, 13, f.Height)
	assert.Equal(t, 1, f.Stride)
	assert.Len(t, f.Data, (Last-First+1)*13)
}

func TestGlyphRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code byte
		ok   bool
	}{
		{"space", ' ', true},
		{"tilde", '~', true},
		{"letter", 'A', true},
		{"control", 31, false},
		{"delete", 127, false},
		{"high", 200, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bm, ok := Font7x13.Glyph(tt.code)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Len(t, bm, 13)
			}
		})
	}
}

func count(f *Font, bm []byte) int {
	n := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if f.Bit(bm, x, y) {
				n++
			}
		}
	}
	return n
}

func TestGlyphContents(t *testing.T) {
	t.Parallel()

	space, _ := Font7x13.Glyph(' ')
	assert.Zero(t, count(Font7x13, space))

	a, _ := Font7x13.Glyph('A')
	assert.NotZero(t, count(Font7x13, a))

	// The last column is the inter-character gap.
	for code := byte(First); code <= Last; code++ {
		bm, _ := Font7x13.Glyph(code)
		for y := 0; y < Font7x13.Height; y++ {
			assert.False(t, Font7x13.Bit(bm, 6, y), "glyph %q row %d", code, y)
		}
	}
}

func TestStringWidth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 35, Font7x13.StringWidth("hello"))
	assert.Equal(t, 0, Font7x13.StringWidth(""))
}

type recorder struct {
	w, h int16
	set  map[image.Point]color.RGBA
}

func (r *recorder) Size() (int16, int16) { return r.w, r.h }

func (r *recorder) SetPixel(x, y int16, c color.RGBA) {
	r.set[image.Pt(int(x), int(y))] = c
}

func (r *recorder) Display() error { return nil }

func TestTinyfontWriteLine(t *testing.T) {
	t.Parallel()

	d := &recorder{w: 64, h: 16, set: map[image.Point]color.RGBA{}}
	c := color.RGBA{R: 0xFF, A: 0xFF}
	tinyfont.WriteLine(d, Font7x13, 0, int16(Font7x13.Ascent), "AB", c)

	want := map[image.Point]color.RGBA{}
	for i, code := range []byte("AB") {
		bm, ok := Font7x13.Glyph(code)
		require.True(t, ok)
		for y := 0; y < Font7x13.Height; y++ {
			for x := 0; x < Font7x13.Width; x++ {
				if Font7x13.Bit(bm, x, y) {
					want[image.Pt(i*Font7x13.Width+x, y)] = c
				}
			}
		}
	}
	assert.Equal(t, want, d.set)

	w, _ := tinyfont.LineWidth(Font7x13, "AB")
	assert.Equal(t, uint32(14), w)
}

func TestGetGlyphSubstitutesUnknownRunes(t *testing.T) {
	t.Parallel()

	g := Font7x13.GetGlyph('é').(glyph)
	assert.Equal(t, byte('?'), g.code())
	assert.Equal(t, int8(-11), g.Info().YOffset)
}
