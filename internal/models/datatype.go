package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDataType is returned when a data type name or code is not recognized.
var ErrUnknownDataType = errors.New("unknown data type")

// DataType identifies the element kind stored in a raw volume file.
type DataType int

const (
	Unknown DataType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var dataTypeNames = map[string]DataType{
	"char":             Int8,
	"int8":             Int8,
	"uchar":            Uint8,
	"unsigned char":    Uint8,
	"uint8":            Uint8,
	"short":            Int16,
	"int16":            Int16,
	"ushort":           Uint16,
	"unsigned short":   Uint16,
	"uint16":           Uint16,
	"int":              Int32,
	"int32":            Int32,
	"uint":             Uint32,
	"unsigned int":     Uint32,
	"unsigned integer": Uint32,
	"uint32":           Uint32,
	"float":            Float32,
	"float32":          Float32,
	"double":           Float64,
	"float64":          Float64,
}

// ParseDataType converts a data type name, as found in .dat files and on the
// command line, into a DataType. Matching ignores case and surrounding space.
func ParseDataType(s string) (DataType, error) {
	t, ok := dataTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownDataType, s)
	}
	return t, nil
}

// String returns the canonical short name of the data type.
func (t DataType) String() string {
	switch t {
	case Int8:
		return "char"
	case Uint8:
		return "uchar"
	case Int16:
		return "short"
	case Uint16:
		return "ushort"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	case Float32:
		return "float"
	case Float64:
		return "double"
	}
	return "unknown"
}

// Size returns the element size in bytes, or 0 for Unknown.
func (t DataType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// Code returns the data type tag stored in index file headers.
// Types without a dedicated code (double) are tagged as float.
func (t DataType) Code() uint32 {
	switch t {
	case Int8:
		return 0
	case Int16:
		return 1
	case Int32:
		return 2
	case Uint8:
		return 3
	case Uint16:
		return 4
	case Uint32:
		return 5
	}
	return 6
}

// DataTypeFromCode maps an index header tag back to a DataType.
// Unknown codes map to Float32.
func DataTypeFromCode(code uint32) DataType {
	switch code {
	case 0:
		return Int8
	case 1:
		return Int16
	case 2:
		return Int32
	case 3:
		return Uint8
	case 4:
		return Uint16
	case 5:
		return Uint32
	}
	return Float32
}

// MarshalText implements encoding.TextMarshaler so data types read naturally in YAML.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Unknown
		return nil
	}
	v, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
