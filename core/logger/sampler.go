package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler admits num out of every den calls. A zero ratio admits everything.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the cycle. Non-positive values disable
// sampling; num is capped at den.
func (s *sampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	num = min(num, den)
	s.ratio.Store(uint64(uint32(num))<<32 | uint64(uint32(den)))
	s.seen.Store(0)
}

// Allow reports whether this call falls in the admitted part of the cycle.
func (s *sampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if den == 0 {
		return true
	}
	return (s.seen.Add(1)-1)%den < num
}

// parseSample reads "1/50" or "50" (meaning 1/50). Zero, negative and
// malformed input report ok=false.
func parseSample(raw string) (num, den int, ok bool) {
	raw = strings.TrimSpace(raw)
	left, right, frac := strings.Cut(raw, "/")
	if !frac {
		left, right = "1", left
	}
	n, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil || n <= 0 {
		return 0, 0, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil || d <= 0 {
		return 0, 0, false
	}
	return n, d, true
}
