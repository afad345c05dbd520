package compositor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

type variant struct {
	bold   bool
	italic bool
}

type faceKey struct {
	family string
	variant
}

// monospaceFamilies are served by the Go Mono faces when no file for them
// has been registered.
var monospaceFamilies = []string{"Courier New", "Lucida Console"}

const (
	builtinSans = "go"
	builtinMono = "go mono"
)

// FontBook resolves a family/weight/style triple to a parsed font.
//
// It always carries the Go font families. Real font files for the families
// in fields.FontFamilies can be registered on top; a family without a file
// falls back to the built-in face with the same weight and style. The Go
// faces cover Latin, Greek and Cyrillic; other scripts need registered files.
type FontBook struct {
	mu    sync.RWMutex
	fonts map[faceKey]*opentype.Font

	log    logging.Logger
	warned sync.Map
}

// SetLogger makes the book warn, once per family, when a render needs
// characters its face cannot draw. Call it before rendering starts.
func (b *FontBook) SetLogger(l logging.Logger) {
	b.log = l
}

// NewFontBook returns a FontBook with the built-in Go faces loaded.
func NewFontBook() (*FontBook, error) {
	b := &FontBook{fonts: make(map[faceKey]*opentype.Font)}

	builtin := []struct {
		family string
		v      variant
		ttf    []byte
	}{
		{builtinSans, variant{false, false}, goregular.TTF},
		{builtinSans, variant{true, false}, gobold.TTF},
		{builtinSans, variant{false, true}, goitalic.TTF},
		{builtinSans, variant{true, true}, gobolditalic.TTF},
		{builtinMono, variant{false, false}, gomono.TTF},
		{builtinMono, variant{true, false}, gomonobold.TTF},
		{builtinMono, variant{false, true}, gomonoitalic.TTF},
		{builtinMono, variant{true, true}, gomonobolditalic.TTF},
	}
	for _, f := range builtin {
		if err := b.register(f.family, f.v, f.ttf); err != nil {
			return nil, fmt.Errorf("builtin font %s: %w", f.family, err)
		}
	}
	return b, nil
}

// Register adds a TrueType/OpenType font for family in the given variant.
func (b *FontBook) Register(family string, bold, italic bool, data []byte) error {
	return b.register(family, variant{bold, italic}, data)
}

func (b *FontBook) register(family string, v variant, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.fonts[faceKey{family, v}] = f
	b.mu.Unlock()
	return nil
}

// LoadDir registers every font file in dir named "<Family>-<Variant>.ttf"
// (or .otf), where Family is an allow-listed family with spaces removed and
// Variant is Regular, Bold, Italic or BoldItalic. Files that do not follow
// the pattern are skipped. It returns the number of fonts registered.
func (b *FontBook) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read fonts dir: %w", err)
	}

	compact := make(map[string]string, len(fields.FontFamilies))
	for _, fam := range fields.FontFamilies {
		compact[strings.ToLower(strings.ReplaceAll(fam, " ", ""))] = fam
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		famPart, varPart, ok := strings.Cut(base, "-")
		if !ok {
			continue
		}
		family, ok := compact[strings.ToLower(famPart)]
		if !ok {
			continue
		}
		var v variant
		switch strings.ToLower(varPart) {
		case "regular":
		case "bold":
			v.bold = true
		case "italic":
			v.italic = true
		case "bolditalic":
			v = variant{true, true}
		default:
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, fmt.Errorf("read font %s: %w", e.Name(), err)
		}
		if err := b.register(family, v, data); err != nil {
			return n, fmt.Errorf("parse font %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// lookup reports the font for family and whether it is a built-in stand-in.
func (b *FontBook) lookup(family string, v variant) (*opentype.Font, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if f, ok := b.fonts[faceKey{family, v}]; ok {
		return f, false
	}
	fallback := builtinSans
	if slices.Contains(monospaceFamilies, family) {
		fallback = builtinMono
	}
	return b.fonts[faceKey{fallback, v}], true
}

// MissingGlyphs returns the distinct characters of text that the font chosen
// for st has no glyph for. Whitespace is ignored.
func (b *FontBook) MissingGlyphs(st Style, text string) []rune {
	f, _ := b.lookup(st.Family, variant{st.Bold, st.Italic})
	if f == nil {
		return nil
	}
	var buf sfnt.Buffer
	var missing []rune
	for _, r := range text {
		if unicode.IsSpace(r) || slices.Contains(missing, r) {
			continue
		}
		if gi, err := f.GlyphIndex(&buf, r); err != nil || gi == 0 {
			missing = append(missing, r)
		}
	}
	return missing
}

func (b *FontBook) warnMissing(st Style, text string) {
	if b.log == nil {
		return
	}
	missing := b.MissingGlyphs(st, text)
	if len(missing) == 0 {
		return
	}
	if _, seen := b.warned.LoadOrStore(st.Family, struct{}{}); seen {
		return
	}
	_, fallback := b.lookup(st.Family, variant{st.Bold, st.Italic})
	b.log.Warn(context.Background(), "font cannot draw some characters, register fonts for this script in fonts_dir",
		"family", st.Family, "fallback", fallback, "missing", string(missing))
}

// Face returns a face for the style at size pixels. The caller closes it.
func (b *FontBook) Face(st Style, size float64) (font.Face, error) {
	f, _ := b.lookup(st.Family, variant{st.Bold, st.Italic})
	if f == nil {
		return nil, fmt.Errorf("no font for family %q", st.Family)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
