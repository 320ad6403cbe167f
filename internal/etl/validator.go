package etl

import (
	"math"
	"unicode/utf8"

	"github.com/BartekS5/reviewseed/pkg/utils"
)

// Column limits of the narrowest bootstrapped schema (MySQL and SQL Server).
const (
	MaxKeyLength  = 20
	MaxTextLength = 255
)

// Field checks shared by the normalizers. Each returns a *ValidationError
// naming the offending field.

func requiredString(raw RawRecord, field string) (string, error) {
	val, ok := raw.Fields[field]
	if !ok || utils.IsBlank(val) {
		return "", invalid(raw, field, "missing required field")
	}
	return utils.ConvertToString(val), nil
}

// optionalString returns the first non-blank value among the given field names.
func optionalString(raw RawRecord, fields ...string) string {
	for _, f := range fields {
		if val, ok := raw.Fields[f]; ok && !utils.IsBlank(val) {
			return utils.ConvertToString(val)
		}
	}
	return ""
}

func requiredInt(raw RawRecord, field string) (int, error) {
	val, ok := raw.Fields[field]
	if !ok || utils.IsBlank(val) {
		return 0, invalid(raw, field, "missing required field")
	}
	n, err := utils.ConvertToInt(val)
	if err != nil {
		return 0, invalid(raw, field, "not an integer: %v", val)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, invalid(raw, field, "%d does not fit a 32-bit integer column", n)
	}
	return n, nil
}

func checkLength(raw RawRecord, field, val string, limit int) error {
	if n := utf8.RuneCountInString(val); n > limit {
		return invalid(raw, field, "%d characters, at most %d allowed", n, limit)
	}
	return nil
}

// optionalFloat returns nil when the field is absent or blank.
func optionalFloat(raw RawRecord, field string) (*float64, error) {
	val, ok := raw.Fields[field]
	if !ok || utils.IsBlank(val) {
		return nil, nil
	}
	f, err := utils.ConvertToFloat(val)
	if err != nil {
		return nil, invalid(raw, field, "not a number: %v", val)
	}
	return &f, nil
}

// checkCoordinates enforces the both-or-neither rule and the valid ranges.
func checkCoordinates(raw RawRecord, lat, lon *float64) error {
	switch {
	case lat == nil && lon == nil:
		return nil
	case lat == nil:
		return invalid(raw, "latitude", "longitude given without latitude")
	case lon == nil:
		return invalid(raw, "longitude", "latitude given without longitude")
	}
	if *lat < -90 || *lat > 90 {
		return invalid(raw, "latitude", "%v out of range [-90, 90]", *lat)
	}
	if *lon < -180 || *lon > 180 {
		return invalid(raw, "longitude", "%v out of range [-180, 180]", *lon)
	}
	return nil
}
