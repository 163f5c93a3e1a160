package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Number is a float64 that survives a JSON round trip even when it is not
// finite.  NaN and ±Inf encode as null; null decodes as NaN.
type Number float64

// NaN returns the Number used for malformed input.
func NaN() Number { return Number(math.NaN()) }

// Float64 returns n as a float64.
func (n Number) Float64() float64 { return float64(n) }

// IsFinite reports whether n is neither NaN nor infinite.
func (n Number) IsFinite() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.IsFinite() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber coerces free-form text into a Number using number-literal
// rules: surrounding whitespace is ignored, an empty string is 0,
// "Infinity" with an optional sign is infinite, 0x/0o/0b prefixes select the
// base for unsigned integers, and anything else that is not a decimal literal
// is NaN.  No range checks are applied.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return Number(math.Inf(1))
	case "-Infinity":
		return Number(math.Inf(-1))
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			i, ok := new(big.Int).SetString(s[2:], base)
			if !ok || i.Sign() < 0 || strings.ContainsAny(s[2:], "+-_") {
				return NaN()
			}
			f, _ := new(big.Float).SetInt(i).Float64()
			return Number(f)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return NaN()
	}
	return Number(f)
}
