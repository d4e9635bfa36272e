package pipeline

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/kshedden/gonpy"

	"volpreproc/internal/models"
	"volpreproc/pkg/reduce"
)

// indexBase returns the index file path without extension:
// <dir>/<prefix>_<bx>-<by>-<bz>_<tmin>-<tmax>.
func indexBase(dir, prefix string, bc models.Vec3, tmin, tmax float64) string {
	name := fmt.Sprintf("%s_%s_%s-%s", prefix, bc,
		strconv.FormatFloat(tmin, 'g', -1, 64),
		strconv.FormatFloat(tmax, 'g', -1, 64))
	return filepath.Join(dir, name)
}

// writeHistogram stores h as a float64 .npy array of shape [buckets, 3]
// holding count, min and max per bucket. Empty buckets have NaN bounds.
func writeHistogram(path string, h *reduce.Histogram) error {
	data := make([]float64, 0, 3*len(h.Buckets))
	for _, b := range h.Buckets {
		lo, hi := b.Min, b.Max
		if b.Count == 0 {
			lo, hi = math.NaN(), math.NaN()
		}
		data = append(data, float64(b.Count), lo, hi)
	}
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{len(h.Buckets), 3}
	w.Version = 2
	return w.WriteFloat64(data)
}
