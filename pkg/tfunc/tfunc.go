// Package tfunc implements the piecewise-linear opacity transfer function
// used to classify voxel relevance.
package tfunc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNoKnots is returned when a transfer function has no knots.
	ErrNoKnots = errors.New("transfer function has no knots")
	// ErrKnotRange is returned when a knot scalar or alpha lies outside [0,1].
	ErrKnotRange = errors.New("transfer function knot outside [0,1]")
)

// Knot is one (scalar, alpha) control point. Scalar is a normalized data value.
type Knot struct {
	Scalar float64
	Alpha  float64
}

// TransferFunction is an immutable list of knots sorted by ascending scalar.
type TransferFunction struct {
	knots []Knot
}

// New validates knots and returns a transfer function over a sorted copy of them.
func New(knots []Knot) (*TransferFunction, error) {
	if len(knots) == 0 {
		return nil, ErrNoKnots
	}
	sorted := make([]Knot, len(knots))
	copy(sorted, knots)
	for _, k := range sorted {
		if k.Scalar < 0 || k.Scalar > 1 || k.Alpha < 0 || k.Alpha > 1 {
			return nil, fmt.Errorf("%w: (%g, %g)", ErrKnotRange, k.Scalar, k.Alpha)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Scalar < sorted[j].Scalar
	})
	return &TransferFunction{knots: sorted}, nil
}

// Load reads a transfer function file.
func Load(path string) (*TransferFunction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tf, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// Parse reads knots, one "scalar alpha" pair per line. Pairs may be separated
// by whitespace or a comma. Blank lines and '#' comments are skipped. A first
// line holding a single integer is taken as the knot count and checked.
func Parse(r io.Reader) (*TransferFunction, error) {
	var (
		knots    []Knot
		expected = -1
		line     int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) == 1 && expected < 0 && len(knots) == 0 {
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: knot count: %w", line, err)
			}
			expected = n
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"scalar alpha\", got %q", line, text)
		}
		s, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		a, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		knots = append(knots, Knot{Scalar: s, Alpha: a})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if expected >= 0 && expected != len(knots) {
		return nil, fmt.Errorf("header declares %d knots, found %d", expected, len(knots))
	}
	return New(knots)
}

// Len returns the number of knots.
func (tf *TransferFunction) Len() int {
	return len(tf.knots)
}

// Knots returns a copy of the knots in ascending scalar order.
func (tf *TransferFunction) Knots() []Knot {
	out := make([]Knot, len(tf.knots))
	copy(out, tf.knots)
	return out
}

// Interpolate returns the opacity at normalized value v.
//
// A value equal to a knot's scalar returns that knot's alpha. A value between
// two knots is linearly interpolated between them. Values below the first
// knot or above the last knot return 0; there is no extrapolation.
func (tf *TransferFunction) Interpolate(v float64) float64 {
	knots := tf.knots
	// first knot with scalar >= v
	i := sort.Search(len(knots), func(i int) bool {
		return knots[i].Scalar >= v
	})
	if i == len(knots) {
		return 0
	}
	b := knots[i]
	if b.Scalar == v {
		return b.Alpha
	}
	if i == 0 {
		return 0
	}
	a := knots[i-1]
	t := (v - a.Scalar) / (b.Scalar - a.Scalar)
	return a.Alpha + (b.Alpha-a.Alpha)*t
}
