// Package compositor renders recipient text onto certificate template images.
//
// The same Compositor serves single sample renders and bulk generation, so
// font fitting and role-based styling have one implementation.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrTemplateLoad reports a template image that could not be fetched or
// decoded. Callers either abort the render or fall back to the raw template.
var ErrTemplateLoad = errors.New("template image could not be loaded")

// QRPlaceholder is drawn in the certificateQR field. No scannable code is
// produced.
const QRPlaceholder = "QR Code"

// TextSpec is one string to place into one field.
type TextSpec struct {
	Text        string
	Field       fields.Field
	MaxFontSize float64
	Role        fields.Name
}

// Template is a decoded template image. It is never modified, so one
// Template can back any number of renders.
type Template struct {
	img    image.Image
	format string
}

// Load decodes a PNG, JPEG, GIF, WebP, BMP or TIFF template.
func Load(data []byte) (*Template, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}
	return &Template{img: img, format: format}, nil
}

// Bounds returns the template's pixel rectangle.
func (t *Template) Bounds() image.Rectangle { return t.img.Bounds() }

// Format returns the decoded image format name, e.g. "png".
func (t *Template) Format() string { return t.format }

// Compositor draws text specs onto templates.
type Compositor struct {
	fonts *FontBook
}

// New returns a Compositor using fonts.
func New(fonts *FontBook) *Compositor {
	return &Compositor{fonts: fonts}
}

// Render draws specs onto a fresh copy of t and returns it PNG-encoded.
// Each call allocates its own surface, so concurrent renders of the same
// Template do not interfere.
func (c *Compositor) Render(t *Template, specs []TextSpec) ([]byte, error) {
	src := t.img
	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, spec := range specs {
		if err := c.drawText(dst, spec); err != nil {
			return nil, fmt.Errorf("draw %s: %w", spec.Role, err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderFields builds one spec per field present in set, taking the text for
// each from data, and renders them. Fields with no text are left blank; the
// QR field always shows QRPlaceholder.
func (c *Compositor) RenderFields(t *Template, set fields.Set, data map[fields.Name]string) ([]byte, error) {
	return c.Render(t, Specs(set, data))
}

// Specs turns a field set and its texts into render specs in a stable order.
func Specs(set fields.Set, data map[fields.Name]string) []TextSpec {
	specs := make([]TextSpec, 0, len(set))
	for _, name := range fields.Names {
		f, ok := set[name]
		if !ok {
			continue
		}
		text := data[name]
		if name == fields.CertificateQR {
			text = QRPlaceholder
		}
		specs = append(specs, TextSpec{Text: text, Field: f, Role: name})
	}
	return specs
}

// Fit reports how spec's text would be sized without drawing it.
func (c *Compositor) Fit(spec TextSpec) (Fit, error) {
	fit, face, err := c.fit(spec, ResolveStyle(spec.Role, spec.Field, spec.Text))
	if err != nil {
		return Fit{}, err
	}
	_ = face.Close()
	return fit, nil
}

func (c *Compositor) fit(spec TextSpec, st Style) (Fit, font.Face, error) {
	maxSize := spec.MaxFontSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFontSize(string(spec.Role))
	}
	return fitText(spec.Text, spec.Field.Width, spec.Field.Height, maxSize, func(size float64) (font.Face, error) {
		return c.fonts.Face(st, size)
	})
}

func (c *Compositor) drawText(dst *image.RGBA, spec TextSpec) error {
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		return nil
	}
	spec.Text = text

	f := spec.Field
	box := image.Rect(int(math.Floor(f.X)), int(math.Floor(f.Y)),
		int(math.Ceil(f.X+f.Width)), int(math.Ceil(f.Y+f.Height)))
	if !box.Overlaps(dst.Bounds()) {
		return nil
	}

	st := ResolveStyle(spec.Role, f, text)
	c.fonts.warnMissing(st, text)
	fit, face, err := c.fit(spec, st)
	if err != nil {
		return err
	}
	defer face.Close()

	ink, _ := font.BoundString(face, text)
	inkTop, inkBottom := toFloat(ink.Min.Y), toFloat(ink.Max.Y)

	x := f.X + (f.Width-fit.Width)/2
	baseline := f.Y + (f.Height-(inkBottom-inkTop))/2 - inkTop

	fill := image.NewUniform(st.Color)
	d := &font.Drawer{
		Dst:  dst,
		Src:  fill,
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(x), Y: toFixed(baseline)},
	}
	d.DrawString(text)

	if st.Underline {
		thickness := math.Max(1, fit.Size/15)
		offset := math.Max(1, fit.Size*0.1)
		line := image.Rect(int(x), int(baseline+offset), int(math.Ceil(x+fit.Width)), int(math.Ceil(baseline+offset+thickness)))
		draw.Draw(dst, line, fill, image.Point{}, draw.Over)
	}
	return nil
}
