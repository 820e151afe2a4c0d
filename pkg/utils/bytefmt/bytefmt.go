package bytefmt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
	tb = 1 << 40
)

// Parse converts a human byte size such as "16MB", "512k" or "1048576" into
// a byte count. Units are binary (1K = 1024) and case-insensitive; a bare
// number is taken as bytes.
func Parse(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, goerr.New("empty byte size")
	}

	unit := int64(1)
	num := strings.ToUpper(trimmed)
	num = strings.TrimSuffix(num, "B")

	switch {
	case strings.HasSuffix(num, "K"):
		unit = kb
		num = strings.TrimSuffix(num, "K")
	case strings.HasSuffix(num, "M"):
		unit = mb
		num = strings.TrimSuffix(num, "M")
	case strings.HasSuffix(num, "G"):
		unit = gb
		num = strings.TrimSuffix(num, "G")
	case strings.HasSuffix(num, "T"):
		unit = tb
		num = strings.TrimSuffix(num, "T")
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid byte size", goerr.V("input", s))
	}
	if value < 0 {
		return 0, goerr.New("byte size must not be negative", goerr.V("input", s))
	}

	return int64(value * float64(unit)), nil
}

// Format renders a byte count for human-readable log output, e.g. "1.5MB".
func Format(n int64) string {
	switch {
	case n >= tb:
		return fmt.Sprintf("%.1fTB", float64(n)/tb)
	case n >= gb:
		return fmt.Sprintf("%.1fGB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1fKB", float64(n)/kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
