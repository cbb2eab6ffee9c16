package shade

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/bits"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/buildingmap/internal/style"
)

// Shade colours each covered pixel with its dominant category, the
// highest-ranked category present. Uncovered pixels stay transparent.
func Shade(agg *Agg, key style.ColorKey) (*image.NRGBA, error) {
	palette := make([]color.NRGBA, len(agg.Categories))
	for i, c := range agg.Categories {
		hex, ok := key.Color(c)
		if !ok {
			return nil, eris.Errorf("shade: no colour for category %q", c)
		}
		col, err := parseHex(hex)
		if err != nil {
			return nil, err
		}
		palette[i] = col
	}

	img := image.NewNRGBA(image.Rect(0, 0, agg.Width, agg.Height))
	for i, cell := range agg.Cells {
		if cell == 0 {
			continue
		}
		c := palette[bits.TrailingZeros32(cell)]
		o := i * 4
		img.Pix[o] = c.R
		img.Pix[o+1] = c.G
		img.Pix[o+2] = c.B
		img.Pix[o+3] = c.A
	}
	return img, nil
}

// EncodePNG encodes img with the best-speed compression level; tiles are
// rendered on demand.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "shade: encode png")
	}
	return buf.Bytes(), nil
}

func parseHex(s string) (color.NRGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, eris.Errorf("shade: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, eris.Wrapf(err, "shade: invalid colour %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
