package hls

import (
	"sort"
	"time"
)

// SegmentRange maps a [from, to] window in the source timeline onto
// segment indexes. Manifest segment boundaries rarely align with the
// requested cut points, so both ends carry a tolerance of one target
// duration: fromIndex is the first segment whose start time falls in
// [from-target, from], toIndex the last whose start time falls in
// [to, to+target]. A to beyond the end of the playlist clamps to the
// last segment.
func (p *MediaPlaylist) SegmentRange(from, to time.Duration) (fromIndex, toIndex int) {
	n := len(p.Segments)
	if n == 0 {
		return 0, -1
	}

	// starts[i] is the accumulated playing time before segment i;
	// monotonically non-decreasing by construction.
	starts := make([]time.Duration, n)
	var acc time.Duration
	for i, seg := range p.Segments {
		starts[i] = acc
		acc += seg.Duration
	}
	target := p.TargetDuration

	fromIndex = sort.Search(n, func(i int) bool { return starts[i] >= from-target })
	if fromIndex == n {
		fromIndex = n - 1
	}

	toIndex = sort.Search(n, func(i int) bool { return starts[i] > to+target }) - 1
	if toIndex < fromIndex {
		toIndex = fromIndex
	}
	if to >= acc {
		toIndex = n - 1
	}

	return fromIndex, toIndex
}
