package compositor

import (
	"math"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	// avgCharWidth is the average glyph advance as a fraction of the em size,
	// used only for the first estimate before anything is measured.
	avgCharWidth = 0.6

	usableWidth  = 0.9
	usableHeight = 0.8

	minFontSize = 8.0

	// fitSlack keeps a rescaled string strictly inside the usable box
	// despite 1/64 px rounding of glyph advances.
	fitSlack = 0.98
)

// Default font size caps per role.
var defaultMaxFontSize = map[string]float64{
	"recipientName":    100,
	"rank":             150,
	"organisationName": 72,
	"certificateLink":  24,
	"certificateQR":    32,
}

// DefaultMaxFontSize returns the size cap used when a TextSpec leaves
// MaxFontSize unset.
func DefaultMaxFontSize(role string) float64 {
	if v, ok := defaultMaxFontSize[role]; ok {
		return v
	}
	return 48
}

// Fit is the outcome of sizing one string into one field.
type Fit struct {
	// InitialSize is the estimate before measuring.
	InitialSize float64
	// Size is the font size actually used.
	Size float64
	// Width and Height are the measured advance and line height at Size.
	Width  float64
	Height float64
}

// EstimateFontSize is the pre-measurement guess: the smallest of the
// width-based estimate, the height-based estimate and the cap, but never
// below the 8px floor.
func EstimateFontSize(text string, width, height, maxSize float64) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		n = 1
	}
	size := math.Min(width/(float64(n)*avgCharWidth), height*usableHeight)
	if maxSize > 0 {
		size = math.Min(size, maxSize)
	}
	return math.Max(size, minFontSize)
}

type faceFunc func(size float64) (font.Face, error)

// fitText measures text at the estimated size and, if it overflows the
// usable part of the box, scales the size down by the overflow ratio and
// measures once more. The returned face matches Fit.Size.
func fitText(text string, width, height, maxSize float64, newFace faceFunc) (Fit, font.Face, error) {
	fit := Fit{InitialSize: EstimateFontSize(text, width, height, maxSize)}
	fit.Size = fit.InitialSize

	face, err := newFace(fit.Size)
	if err != nil {
		return Fit{}, nil, err
	}
	fit.Width, fit.Height = measure(face, text)

	maxW, maxH := width*usableWidth, height*usableHeight
	if fit.Width <= maxW && fit.Height <= maxH {
		return fit, face, nil
	}

	ratio := 1.0
	if fit.Width > maxW {
		ratio = maxW / fit.Width
	}
	if fit.Height > maxH {
		ratio = math.Min(ratio, maxH/fit.Height)
	}
	_ = face.Close()

	fit.Size = math.Max(fit.Size*ratio*fitSlack, 1)
	face, err = newFace(fit.Size)
	if err != nil {
		return Fit{}, nil, err
	}
	fit.Width, fit.Height = measure(face, text)
	return fit, face, nil
}

func measure(face font.Face, text string) (width, height float64) {
	m := face.Metrics()
	return toFloat(font.MeasureString(face, text)), toFloat(m.Ascent + m.Descent)
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
