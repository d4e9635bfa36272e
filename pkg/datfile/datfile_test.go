package datfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpreproc/internal/models"
)

const sample = `# descriptor written by the scanner
ObjectFileName: skull.raw
TaggedFileName: ---
Resolution:     256 256 113
SliceThickness: 1 1 1
Format:         UCHAR
`

func TestParse(t *testing.T) {
	d, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, "skull.raw", d.ObjectFileName)
	assert.Equal(t, models.Vec3{256, 256, 113}, d.Dims)
	assert.Equal(t, models.Uint8, d.Type)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no resolution", "ObjectFileName: a.raw\nFormat: float\n"},
		{"short resolution", "Resolution: 1 2\n"},
		{"bad number", "Resolution: 1 two 3\n"},
		{"bad format", "Resolution: 1 2 3\nFormat: complex\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndRawPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skull.dat")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "skull.raw"), d.RawPath(path))

	d.ObjectFileName = "/data/skull.raw"
	assert.Equal(t, "/data/skull.raw", d.RawPath(path))
}
