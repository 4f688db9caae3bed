package lod

import (
	"fmt"

	"github.com/born-ml/seqtensor/internal/memory"
)

// SliceLevels returns a new index holding copies of levels [begin, end).
func (l *LoD) SliceLevels(begin, end int) (*LoD, error) {
	if begin < 0 || begin > len(l.levels) {
		return nil, &memory.BoundsError{What: "level", Index: begin, Len: len(l.levels)}
	}
	if end < begin || end > len(l.levels) {
		return nil, &memory.BoundsError{What: "level", Index: end, Len: len(l.levels)}
	}

	out := New(l.ctx)
	for k := begin; k < end; k++ {
		offsets, err := l.levels[k].HostData()
		if err != nil {
			out.Release()
			return nil, fmt.Errorf("level %d: %w", k, err)
		}
		out.levels = append(out.levels, memory.New(l.ctx, offsets))
	}
	return out, nil
}

// SliceInLevel returns the index restricted to elements [begin, end) of level,
// together with every finer level, rebased so each level starts at 0. Coarser
// levels are dropped. dataStart and dataEnd bound the flat data rows covered by
// the slice.
func (l *LoD) SliceInLevel(level, begin, end int) (sliced *LoD, dataStart, dataEnd int, err error) {
	n, err := l.NumElements(level)
	if err != nil {
		return nil, 0, 0, err
	}
	if begin < 0 || begin > n {
		return nil, 0, 0, &memory.BoundsError{What: "element", Index: begin, Len: n}
	}
	if end < begin || end > n {
		return nil, 0, 0, &memory.BoundsError{What: "element", Index: end, Len: n}
	}

	out := New(l.ctx)
	lo, hi := uint64(begin), uint64(end)
	for k := level; k < len(l.levels); k++ {
		offsets, err := l.levels[k].HostData()
		if err != nil {
			out.Release()
			return nil, 0, 0, fmt.Errorf("level %d: %w", k, err)
		}
		if hi >= uint64(len(offsets)) {
			out.Release()
			return nil, 0, 0, fmt.Errorf("%w: level %d has %d offsets, range ends at %d",
				ErrInconsistent, k, len(offsets), hi)
		}

		base := offsets[lo]
		rebased := make([]uint64, hi-lo+1)
		for i := range rebased {
			rebased[i] = offsets[lo+uint64(i)] - base
		}
		out.levels = append(out.levels, memory.New(l.ctx, rebased))
		lo, hi = offsets[lo], offsets[hi]
	}
	return out, int(lo), int(hi), nil
}

// AbsOffsets returns every level expressed as offsets into the flat data.
// The innermost level is returned unchanged; coarser levels are composed through
// the finer ones.
func (l *LoD) AbsOffsets() ([][]uint64, error) {
	rel, err := l.Offsets()
	if err != nil {
		return nil, err
	}
	abs := make([][]uint64, len(rel))
	for k := len(rel) - 1; k >= 0; k-- {
		if k == len(rel)-1 {
			abs[k] = rel[k]
			continue
		}
		finer := abs[k+1]
		abs[k] = make([]uint64, len(rel[k]))
		for i, o := range rel[k] {
			if o >= uint64(len(finer)) {
				return nil, fmt.Errorf("%w: level %d offset %d points past level %d (%d offsets)",
					ErrInconsistent, k, o, k+1, len(finer))
			}
			abs[k][i] = finer[o]
		}
	}
	return abs, nil
}
