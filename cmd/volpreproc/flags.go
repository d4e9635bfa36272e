package main

import (
	"fmt"
	"strconv"
	"strings"

	"volpreproc/internal/models"
	"volpreproc/pkg/config"
)

// vec3Flag parses "X,Y,Z".
type vec3Flag models.Vec3

func (v *vec3Flag) String() string {
	return models.Vec3(*v).String()
}

func (v *vec3Flag) Set(s string) error {
	vec, err := parseVec3(s)
	if err != nil {
		return err
	}
	*v = vec3Flag(vec)
	return nil
}

// vec3ListFlag collects every "X,Y,Z" it is given.
type vec3ListFlag []models.Vec3

func (l *vec3ListFlag) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}

func (l *vec3ListFlag) Set(s string) error {
	vec, err := parseVec3(s)
	if err != nil {
		return err
	}
	*l = append(*l, vec)
	return nil
}

func parseVec3(s string) (models.Vec3, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == 'x' || r == ' '
	})
	if len(fields) != 3 {
		return models.Vec3{}, fmt.Errorf("%q: want X,Y,Z", s)
	}
	var v models.Vec3
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return models.Vec3{}, fmt.Errorf("%q: %w", s, err)
		}
		v[i] = n
	}
	return v, nil
}

// intervalFlag parses "min,max".
type intervalFlag config.Interval

func (i *intervalFlag) String() string {
	return fmt.Sprintf("%g,%g", i.Min, i.Max)
}

func (i *intervalFlag) Set(s string) error {
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return fmt.Errorf("%q: want min,max", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return err
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return err
	}
	*i = intervalFlag{Min: a, Max: b}
	return nil
}
