package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	defer chdir(t, tmp)()

	got, err := EnsureDir("out/certs")
	require.NoError(t, err)

	want := filepath.Join(tmp, "out", "certs")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()

	first, err := EnsureDir(filepath.Join(tmp, "out"))
	require.NoError(t, err)

	second, err := EnsureDir(filepath.Join(tmp, "out"))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))

	_, err := EnsureDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"Ada Lovelace":        "Ada_Lovelace",
		"  O'Brien, Jr.  ":    "O_Brien_Jr",
		"../../etc/passwd":    "etc_passwd",
		"José Müller-Lüdens":  "José_Müller-Lüdens",
		"":                    "certificate",
		"***":                 "certificate",
		"a   b":               "a_b",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestNamer_Next(t *testing.T) {
	n := NewNamer()

	assert.Equal(t, "Ada_Lovelace.png", n.Next("Ada Lovelace", ".png"))
	assert.Equal(t, "Ada_Lovelace-2.png", n.Next("Ada Lovelace", ".png"))
	assert.Equal(t, "ada_lovelace-3.png", n.Next("ada lovelace", ".png"))
	assert.Equal(t, "Bob.png", n.Next("Bob", ".png"))
}

func TestNamer_NextAvoidsLiteralSuffixClash(t *testing.T) {
	n := NewNamer()

	assert.Equal(t, "Bob-2.png", n.Next("Bob-2", ".png"))
	assert.Equal(t, "Bob.png", n.Next("Bob", ".png"))
	assert.Equal(t, "Bob-3.png", n.Next("Bob", ".png"))
}
