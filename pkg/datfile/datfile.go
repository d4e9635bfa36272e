// Package datfile parses the .dat descriptor files that accompany raw volumes.
//
// A descriptor is a list of "Key: value" lines. The keys used here are
// ObjectFileName, Resolution and Format; others are ignored, as are lines
// starting with '#'.
package datfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"volpreproc/internal/models"
)

// ErrMissingResolution is returned when a descriptor has no usable Resolution line.
var ErrMissingResolution = errors.New("dat file has no resolution")

// Descriptor is the content of a .dat file.
type Descriptor struct {
	// ObjectFileName is the raw file name as written in the descriptor.
	ObjectFileName string
	Dims           models.Vec3
	Type           models.DataType
}

// RawPath resolves ObjectFileName against the directory of the descriptor at
// datPath. Absolute names are returned unchanged.
func (d Descriptor) RawPath(datPath string) string {
	if d.ObjectFileName == "" || filepath.IsAbs(d.ObjectFileName) {
		return d.ObjectFileName
	}
	return filepath.Join(filepath.Dir(datPath), d.ObjectFileName)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("ObjectFileName: %s\nResolution: %d %d %d\nFormat: %s",
		d.ObjectFileName, d.Dims[0], d.Dims[1], d.Dims[2], d.Type)
}

// Load reads and parses the descriptor at path.
func Load(path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, err
	}
	defer f.Close()
	d, err := Parse(f)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse reads a descriptor from r.
func Parse(r io.Reader) (Descriptor, error) {
	var d Descriptor
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "objectfilename":
			d.ObjectFileName = value
		case "resolution":
			dims, err := parseResolution(value)
			if err != nil {
				return Descriptor{}, fmt.Errorf("line %d: %w", line, err)
			}
			d.Dims = dims
		case "format":
			t, err := models.ParseDataType(value)
			if err != nil {
				return Descriptor{}, fmt.Errorf("line %d: %w", line, err)
			}
			d.Type = t
		}
	}
	if err := scanner.Err(); err != nil {
		return Descriptor{}, err
	}
	if d.Dims.IsZero() {
		return Descriptor{}, ErrMissingResolution
	}
	return d, nil
}

func parseResolution(s string) (models.Vec3, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return models.Vec3{}, fmt.Errorf("resolution %q: want three integers", s)
	}
	var dims models.Vec3
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return models.Vec3{}, fmt.Errorf("resolution %q: %w", s, err)
		}
		dims[i] = n
	}
	return dims, nil
}
