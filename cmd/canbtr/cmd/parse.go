package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseBitrate accepts plain bits per second or k/M suffixed values,
// "666666", "500k", "33.333k" and "1M".
func parseBitrate(s string) (int, error) {
	mult := 1.0
	num := strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(num, "k"), strings.HasSuffix(num, "K"):
		mult, num = 1e3, num[:len(num)-1]
	case strings.HasSuffix(num, "M"):
		mult, num = 1e6, num[:len(num)-1]
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	bitrate := int(math.Round(v * mult))
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate %q: must be positive", s)
	}
	return bitrate, nil
}

// parseTiming parses "brp:tseg1:tseg2" with an optional ":sjw".
func parseTiming(s string) (brp, tseg1, tseg2, sjw int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("invalid timing %q, want brp:tseg1:tseg2[:sjw]", s)
	}
	vals := []int{0, 0, 0, 1}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid timing %q: %w", s, err)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}
