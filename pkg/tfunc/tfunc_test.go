package tfunc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(t *testing.T) *TransferFunction {
	t.Helper()
	tf, err := New([]Knot{{0, 0}, {0.5, 1}, {1, 0}})
	require.NoError(t, err)
	return tf
}

func TestInterpolate(t *testing.T) {
	tf := triangle(t)

	assert.InDelta(t, 0.5, tf.Interpolate(0.25), 1e-12)
	assert.Equal(t, 1.0, tf.Interpolate(0.5))
	assert.InDelta(t, 0.5, tf.Interpolate(0.75), 1e-12)
	assert.Equal(t, 0.0, tf.Interpolate(0))
	assert.Equal(t, 0.0, tf.Interpolate(1))
	assert.Equal(t, 0.0, tf.Interpolate(1.1))
	assert.Equal(t, 0.0, tf.Interpolate(-0.1))
}

func TestInterpolateOutsideKnots(t *testing.T) {
	tf, err := New([]Knot{{0.2, 0.8}, {0.6, 0.4}})
	require.NoError(t, err)

	assert.Equal(t, 0.0, tf.Interpolate(0.1))
	assert.Equal(t, 0.8, tf.Interpolate(0.2))
	assert.InDelta(t, 0.6, tf.Interpolate(0.4), 1e-12)
	assert.Equal(t, 0.0, tf.Interpolate(0.7))
}

func TestNewSortsKnots(t *testing.T) {
	tf, err := New([]Knot{{1, 0}, {0, 0}, {0.5, 1}})
	require.NoError(t, err)
	assert.Equal(t, []Knot{{0, 0}, {0.5, 1}, {1, 0}}, tf.Knots())
	assert.Equal(t, 3, tf.Len())
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoKnots)

	_, err = New([]Knot{{1.5, 0}})
	assert.ErrorIs(t, err, ErrKnotRange)

	_, err = New([]Knot{{0.5, -1}})
	assert.ErrorIs(t, err, ErrKnotRange)
}

func TestParse(t *testing.T) {
	input := `# triangle
3
0 0
0.5, 1

1	0
`
	tf, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Knot{{0, 0}, {0.5, 1}, {1, 0}}, tf.Knots())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", "# nothing\n"},
		{"count mismatch", "2\n0 0\n"},
		{"bad scalar", "x 0\n"},
		{"too many fields", "0 0 0\n"},
		{"out of range", "0 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tf.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 0\n1 1\n"), 0644))

	tf, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, tf.Interpolate(0.3), 1e-12)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestOpacityFunction(t *testing.T) {
	tf := triangle(t)

	f := NewOpacityFunction[uint8](tf, 0, 200)
	assert.InDelta(t, 0.25, f.Normalize(50), 1e-12)
	assert.InDelta(t, 0.5, f.Relevance(50), 1e-12)
	assert.Equal(t, 1.0, f.Relevance(100))

	// constant volume: every voxel maps to scalar 0
	c := NewOpacityFunction[float32](tf, 5, 5)
	assert.Equal(t, 0.0, c.Normalize(5))
	assert.Equal(t, 0.0, c.Relevance(5))
}
