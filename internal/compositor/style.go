package compositor

import (
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/fields"
)

// Style is the effective text appearance for one field.
type Style struct {
	Family    string
	Bold      bool
	Italic    bool
	Underline bool
	Color     color.RGBA
}

var black = color.RGBA{A: 0xff}

// firstPlaceRe matches rank texts that denote a winner.
var firstPlaceRe = regexp.MustCompile(`(?i)^\s*1\s*$|\b(1st|first|winner|champion|gold)\b`)

// ResolveStyle applies the role defaults and then the explicit attributes set
// on the field. Explicit attributes always win.
func ResolveStyle(role fields.Name, f fields.Field, text string) Style {
	st := Style{Family: "Arial", Color: black}

	switch role {
	case fields.RecipientName:
		st.Family = "Open Sans"
		st.Bold = true
	case fields.Rank:
		st.Bold = true
		st.Italic = firstPlaceRe.MatchString(text)
	case fields.OrganisationName:
		st.Family = "Montserrat"
	case fields.CertificateLink:
		st.Family = "Roboto"
		st.Underline = true
	case fields.CertificateQR:
		st.Family = "Courier New"
	}

	if f.FontFamily != "" {
		st.Family = f.FontFamily
	}
	switch f.FontWeight {
	case fields.WeightBold:
		st.Bold = true
	case fields.WeightNormal:
		st.Bold = false
	}
	switch f.FontStyle {
	case fields.StyleItalic:
		st.Italic = true
	case fields.StyleNormal:
		st.Italic = false
	}
	switch f.TextDecoration {
	case fields.DecorationUnderline:
		st.Underline = true
	case fields.DecorationNone:
		st.Underline = false
	}
	if c, ok := ParseHexColor(f.Color); ok {
		st.Color = c
	}
	return st
}

// ParseHexColor parses #RGB or #RRGGBB.
func ParseHexColor(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
