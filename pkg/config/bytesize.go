package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByteSize parses strings like "2GB", "512MB", "100KB", or a bare
// byte count, following the same human-readable size convention the
// teacher's config uses for max_memory/memtable_size/max_log_size.
func ParseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	upper := strings.ToUpper(s)
	units := []struct {
		suffix     string
		multiplier uint64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			numPart := strings.TrimSpace(upper[:len(upper)-len(u.suffix)])
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
			}
			if n < 0 {
				return 0, fmt.Errorf("byte size %q must not be negative", s)
			}
			return uint64(n * float64(u.multiplier)), nil
		}
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return n, nil
}
