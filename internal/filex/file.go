// Package filex has file naming and directory helpers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// EnsureDir creates dir (and parents) if needed and returns its absolute path.
// A relative dir is resolved against the working directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// SafeName turns an arbitrary display name into a file name stem made of
// letters, digits, '-' and '_'. Runs of other characters collapse into a
// single '_'. An empty result becomes "certificate".
func SafeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "certificate"
	}
	return s
}

// Namer hands out unique file names within one archive.
type Namer struct {
	seen map[string]int
}

func NewNamer() *Namer {
	return &Namer{seen: make(map[string]int)}
}

// Next returns SafeName(name)+ext, adding "-2", "-3", ... on collisions.
// Collisions are case-insensitive so archives extract cleanly everywhere.
func (n *Namer) Next(name, ext string) string {
	stem := SafeName(name)
	for {
		key := strings.ToLower(stem)
		n.seen[key]++
		if c := n.seen[key]; c > 1 {
			candidate := stem + "-" + strconv.Itoa(c)
			if _, taken := n.seen[strings.ToLower(candidate)]; !taken {
				n.seen[strings.ToLower(candidate)] = 1
				return candidate + ext
			}
			continue
		}
		return stem + ext
	}
}
