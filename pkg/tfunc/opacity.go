package tfunc

import "volpreproc/pkg/bufpool"

// OpacityFunction maps raw voxel values to relevance through a transfer
// function, normalizing by the volume's observed value range.
type OpacityFunction[T bufpool.Element] struct {
	tf   *TransferFunction
	min  float64
	diff float64
}

// NewOpacityFunction returns the relevance classifier for a volume whose
// values span [volMin, volMax]. A constant volume normalizes every voxel to 0.
func NewOpacityFunction[T bufpool.Element](tf *TransferFunction, volMin, volMax float64) *OpacityFunction[T] {
	return &OpacityFunction[T]{tf: tf, min: volMin, diff: volMax - volMin}
}

// Normalize maps a raw value into [0,1] relative to the volume range.
func (f *OpacityFunction[T]) Normalize(val T) float64 {
	if f.diff == 0 {
		return 0
	}
	return (float64(val) - f.min) / f.diff
}

// Relevance returns the relevance of a raw voxel value.
func (f *OpacityFunction[T]) Relevance(val T) float64 {
	return f.tf.Interpolate(f.Normalize(val))
}
