package numbers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingValue is returned when a numeric field is absent from a payload.
	ErrMissingValue = errors.New("numbers: missing value")
	// ErrNotFinite is returned for NaN and infinities.
	ErrNotFinite = errors.New("numbers: value is not finite")
)

// ExtractFloat converts the scalar shapes upstream JSON services use for
// amounts (numbers, numeric strings, json.Number) into a finite float64.
func ExtractFloat(val any) (float64, error) {
	f, err := extractFloat(val)
	if err != nil {
		return 0, err
	}
	if !IsFinite(f) {
		return 0, fmt.Errorf("%w: %v", ErrNotFinite, val)
	}
	return f, nil
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func extractFloat(val any) (float64, error) {
	switch v := val.(type) {
	case nil:
		return 0, ErrMissingValue
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, ErrMissingValue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", val)
	}
}

// Round rounds half away from zero to the given number of decimal places.
// Rounding an already rounded value returns it unchanged. Non-finite values
// are returned as is.
func Round(value float64, places int32) float64 {
	if !IsFinite(value) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Round2 is Round(value, 2), the precision used for lot sizes.
func Round2(value float64) float64 {
	return Round(value, 2)
}
