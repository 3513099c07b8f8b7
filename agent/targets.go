package agent

import "framecache/internal/cache"

// directionalOffsets builds the offset list a directional preload request
// expands to: forward-only, backward-only, or both, out to radius frames
// (spec.md 4.6's preload(key, direction) and 4.4's submit direction).
func directionalOffsets(direction cache.Direction, radius int) []int {
	if radius <= 0 {
		return nil
	}
	offsets := make([]int, 0, radius*2)
	switch direction {
	case cache.DirectionForward:
		for i := 1; i <= radius; i++ {
			offsets = append(offsets, i)
		}
	case cache.DirectionBackward:
		for i := 1; i <= radius; i++ {
			offsets = append(offsets, -i)
		}
	default: // DirectionBoth
		for i := 1; i <= radius; i++ {
			offsets = append(offsets, i, -i)
		}
	}
	return offsets
}

// inferDirection guesses the direction of travel from the two most recent
// frame IDs, by comparing their extracted numeric index. An unknown or
// first access defaults to forward, matching the common playback case.
func inferDirection(previous, current string) cache.Direction {
	if previous == "" || previous == current {
		return cache.DirectionForward
	}

	ps, pe, pok := digitRun(previous)
	cs, ce, cok := digitRun(current)
	if !pok || !cok {
		return cache.DirectionForward
	}

	prevN := parseDigits(previous[ps:pe])
	curN := parseDigits(current[cs:ce])
	switch {
	case curN > prevN:
		return cache.DirectionForward
	case curN < prevN:
		return cache.DirectionBackward
	default:
		return cache.DirectionBoth
	}
}

// nextFrameIDs generates candidate preload targets around base by shifting
// its first maximal digit run by each offset, preserving the run's
// zero-padding width. This replaces the Python original's
// `frame_{n:06d}` string-format assumption (preloader.py
// _calculate_preload_targets) with a format-agnostic transform, since
// spec.md treats frame identifiers as opaque strings.
func nextFrameIDs(base string, offsets []int) []string {
	start, end, ok := digitRun(base)
	if !ok {
		return nil
	}

	width := end - start
	n := parseDigits(base[start:end])

	out := make([]string, 0, len(offsets))
	for _, off := range offsets {
		if off == 0 {
			continue
		}
		target := n + off
		if target < 0 {
			continue
		}
		out = append(out, base[:start]+padInt(target, width)+base[end:])
	}
	return out
}

func digitRun(key string) (start, end int, ok bool) {
	found := false
	for i := 0; i <= len(key); i++ {
		isDigit := i < len(key) && key[i] >= '0' && key[i] <= '9'
		if isDigit && !found {
			start = i
			found = true
		}
		if found && !isDigit {
			return start, i, true
		}
	}
	return 0, 0, false
}

func parseDigits(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func padInt(n, width int) string {
	s := itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
