// Package cpu converts Kubernetes CPU quantity strings into millicores.
package cpu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedQuantity is returned when a CPU quantity string cannot be parsed.
var ErrMalformedQuantity = errors.New("malformed CPU quantity")

// ParseMillicores parses a CPU resource quantity string into millicores.
//
// Recognized forms, in order: the empty string (no request set, 0), a
// trailing "m" suffix (millicores), a trailing "n" suffix (nanocores,
// truncated to millicores), a decimal number of cores, and an integer
// number of cores. Anything else fails with ErrMalformedQuantity, as do
// negative quantities: the result is always >= 0.
func ParseMillicores(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var millicores int64
	switch {
	case strings.HasSuffix(s, "m"):
		v, err := strconv.ParseInt(strings.TrimSuffix(s, "m"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
		}
		millicores = v
	case strings.HasSuffix(s, "n"):
		v, err := strconv.ParseInt(strings.TrimSuffix(s, "n"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
		}
		// Integer division truncates sub-millicore nanocores.
		millicores = v / 1_000_000
	case strings.Contains(s, "."):
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
		}
		millicores = int64(v * 1000)
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
		}
		millicores = v * 1000
	}

	if millicores < 0 {
		return 0, fmt.Errorf("%w: negative quantity %q", ErrMalformedQuantity, s)
	}
	return millicores, nil
}

// FormatMillicores renders a millicore value in the canonical "<n>m" form
// used in container resource requests.
func FormatMillicores(millicores int64) string {
	return strconv.FormatInt(millicores, 10) + "m"
}
