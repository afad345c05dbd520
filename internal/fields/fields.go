// Package fields describes the named text regions placed on a certificate
// template and validates them before they are stored or rendered.
package fields

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Name identifies the semantic role of a field on the template.
type Name string

const (
	RecipientName    Name = "recipientName"
	OrganisationName Name = "organisationName"
	CertificateLink  Name = "certificateLink"
	CertificateQR    Name = "certificateQR"
	Rank             Name = "rank"
)

// Names lists every known field name in display order.
var Names = []Name{RecipientName, OrganisationName, CertificateLink, CertificateQR, Rank}

// Valid reports whether n is one of the known field names.
func (n Name) Valid() bool {
	return slices.Contains(Names, n)
}

// Style values.
const (
	WeightNormal = "normal"
	WeightBold   = "bold"

	StyleNormal = "normal"
	StyleItalic = "italic"

	DecorationNone      = "none"
	DecorationUnderline = "underline"
)

// Field is a rectangle on the template image plus optional text styling.
// Empty style attributes mean "use the role default".
type Field struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	FontFamily     string `json:"fontFamily,omitempty"`
	FontWeight     string `json:"fontWeight,omitempty"`
	FontStyle      string `json:"fontStyle,omitempty"`
	TextDecoration string `json:"textDecoration,omitempty"`
	Color          string `json:"color,omitempty"`
}

// Set maps a field name to its region. Map keys keep names unique.
type Set map[Name]Field

// Has reports whether the set defines the named field.
func (s Set) Has(n Name) bool {
	_, ok := s[n]
	return ok
}

var colorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// FontFamilies is the allow-list accepted for the fontFamily attribute.
var FontFamilies = []string{
	"Arial", "Helvetica", "Verdana", "Tahoma", "Trebuchet MS",
	"Times New Roman", "Georgia", "Garamond", "Palatino Linotype", "Book Antiqua",
	"Courier New", "Lucida Console", "Roboto", "Open Sans", "Lato",
	"Montserrat", "Poppins", "Inter", "Raleway", "Oswald",
	"Nunito", "Source Sans Pro", "Noto Sans", "Noto Serif", "Ubuntu",
	"Work Sans", "Fira Sans", "Rubik", "Quicksand", "Karla",
	"Barlow", "Manrope", "DM Sans", "Mukta", "Josefin Sans",
	"Playfair Display", "Merriweather", "Lora", "PT Serif", "EB Garamond",
	"Libre Baskerville", "Crimson Text", "Cormorant Garamond", "DM Serif Display", "Cinzel",
	"Abril Fatface", "Bebas Neue", "Great Vibes", "Dancing Script", "Pacifico",
	"Alex Brush", "Allura", "Tangerine", "Parisienne", "Sacramento",
}

// ValidFontFamily reports whether family is in FontFamilies.
func ValidFontFamily(family string) bool {
	return slices.Contains(FontFamilies, family)
}

// Validate checks geometry and styling of a decoded field.
func (f Field) Validate(name Name) error {
	for _, v := range []float64{f.X, f.Y, f.Width, f.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: x, y, width and height must be finite numbers", name)
		}
	}
	if f.X < 0 || f.Y < 0 {
		return fmt.Errorf("%s: x and y coordinates must be non-negative", name)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%s: width and height must be positive", name)
	}

	if f.FontFamily != "" && !ValidFontFamily(f.FontFamily) {
		return fmt.Errorf("%s: fontFamily %q is not supported", name, f.FontFamily)
	}
	if f.FontWeight != "" && f.FontWeight != WeightNormal && f.FontWeight != WeightBold {
		return fmt.Errorf("%s: fontWeight must be %q or %q", name, WeightNormal, WeightBold)
	}
	if f.FontStyle != "" && f.FontStyle != StyleNormal && f.FontStyle != StyleItalic {
		return fmt.Errorf("%s: fontStyle must be %q or %q", name, StyleNormal, StyleItalic)
	}
	if f.TextDecoration != "" && f.TextDecoration != DecorationNone && f.TextDecoration != DecorationUnderline {
		return fmt.Errorf("%s: textDecoration must be %q or %q", name, DecorationNone, DecorationUnderline)
	}
	if f.Color != "" && !colorRe.MatchString(f.Color) {
		return fmt.Errorf("%s: color must be a hex color like #RGB or #RRGGBB", name)
	}
	return nil
}

func joinNames(names []string) string {
	slices.Sort(names)
	return strings.Join(names, ", ")
}
