// Package cos ("common os"/"common stuff") holds byte-size constants and
// formatting helpers shared across the core.
package cos

import "fmt"

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// B2S formats n bytes as a human-readable string with digits decimal
// places, e.g. B2S(1536, 2) == "1.50KiB".
func B2S(n int64, digits int) string {
	switch {
	case n >= GiB:
		return fmt.Sprintf("%.*fGiB", digits, float64(n)/GiB)
	case n >= MiB:
		return fmt.Sprintf("%.*fMiB", digits, float64(n)/MiB)
	case n >= KiB:
		return fmt.Sprintf("%.*fKiB", digits, float64(n)/KiB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// ParsePercentOrBytes parses either "70%" (percentage of base) or an
// absolute byte count ("1073741824" / "1GiB"-style suffix not supported
// here — callers that need suffix parsing use plain integers). "0%" and
// "0" both mean "disabled."
func ParsePercentOrBytes(s string, base int64) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("cos: empty limit spec")
	}
	if s[len(s)-1] == '%' {
		var pct float64
		if _, err := fmt.Sscanf(s[:len(s)-1], "%f", &pct); err != nil {
			return 0, fmt.Errorf("cos: invalid percent %q: %w", s, err)
		}
		if pct < 0 || pct > 100 {
			return 0, fmt.Errorf("cos: percent %q out of range [0,100]", s)
		}
		return int64(pct / 100 * float64(base)), nil
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("cos: invalid byte count %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("cos: negative byte count %q", s)
	}
	return n, nil
}
