package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Score is either a number or missing. The zero value is missing.
type Score struct {
	value float64
	ok    bool
}

// Numeric returns a present score.
func Numeric(v float64) Score {
	return Score{value: v, ok: true}
}

// Missing returns an absent score.
func Missing() Score {
	return Score{}
}

// Value returns the number and whether it is present.
func (s Score) Value() (float64, bool) {
	return s.value, s.ok
}

// IsMissing reports whether the score is absent.
func (s Score) IsMissing() bool {
	return !s.ok
}

// Or returns the number, or fallback when missing.
func (s Score) Or(fallback float64) float64 {
	if !s.ok {
		return fallback
	}
	return s.value
}

// Format renders the score with the given precision, or "-" when missing.
func (s Score) Format(prec int) string {
	if !s.ok {
		return "-"
	}
	return strconv.FormatFloat(s.value, 'f', prec, 64)
}

// MarshalJSON encodes a missing or non-finite score as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.ok || math.IsInf(s.value, 0) || math.IsNaN(s.value) {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON decodes null as missing.
func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Missing()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Numeric(v)
	return nil
}
