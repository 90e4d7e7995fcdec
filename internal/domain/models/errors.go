package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInputShape marks missing or misaligned input series. Fatal for the run.
	ErrInputShape = errors.New("input shape")
	// ErrConfiguration marks an invalid rule parameter combination, rejected at construction.
	ErrConfiguration = errors.New("configuration")
)

// ShapeErrorf wraps ErrInputShape with detail.
func ShapeErrorf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInputShape, fmt.Sprintf(format, a...))
}

// ConfigErrorf wraps ErrConfiguration with detail.
func ConfigErrorf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}

func IsInputShape(err error) bool { return errors.Is(err, ErrInputShape) }

func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
