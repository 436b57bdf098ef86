package analyzer

import "sort"

// MaxSampledFrames bounds how many frames of a liveness capture are analysed.
const MaxSampledFrames = 5

// SampleIndices picks the frames of an n-frame sequence to analyse: first,
// midpoint and last, plus the first and third quartile when n > 6. The
// result is unique, ascending and never longer than MaxSampledFrames.
func SampleIndices(n int) []int {
	if n <= 0 {
		return nil
	}

	candidates := []int{0, n / 2, n - 1}
	if n > 6 {
		candidates = append(candidates, n/4, (3*n)/4)
	}

	seen := make(map[int]struct{}, len(candidates))
	out := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
