// Package lod implements the level-of-detail index: an ordered list of offset
// levels describing nested variable-length sequences over a flat range of elements.
//
// Level 0 is the coarsest grouping. Offsets of level k index into the ranges of
// level k+1; offsets of the last level index into the flat data. For example two
// documents holding one and two sentences, over a flat array of 11 word vectors:
//
//	level 0: [0 1 3]       document i covers sentences [o[i], o[i+1])
//	level 1: [0 4 9 11]    sentence j covers rows [o[j], o[j+1]) of the data
package lod

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/memory"
)

// Level is one level of the index: non-decreasing offsets starting at 0.
// Consecutive offsets (o[i], o[i+1]) bound the i-th range of the level.
type Level = memory.DualBuffer[uint64]

var (
	// ErrInvalidLevel is returned when pushed offsets do not start at 0 or decrease.
	ErrInvalidLevel = errors.New("lod: invalid level")
	// ErrInconsistent is returned by Validate when adjacent levels disagree.
	ErrInconsistent = errors.New("lod: inconsistent levels")
)

// LoD is an append-only list of offset levels, coarsest first.
// A LoD owns its levels; it is not safe for concurrent use.
type LoD struct {
	ctx    device.Context
	levels []*Level
}

// New returns an empty LoD whose levels are created on ctx (nil for host only).
func New(ctx device.Context) *LoD {
	return &LoD{ctx: ctx}
}

// FromOffsets builds a LoD by pushing each level in order.
func FromOffsets(ctx device.Context, levels [][]uint64) (*LoD, error) {
	l := New(ctx)
	for k, offsets := range levels {
		if err := l.PushLevel(offsets); err != nil {
			l.Release()
			return nil, fmt.Errorf("level %d: %w", k, err)
		}
	}
	return l, nil
}

// PushLevel appends a new innermost level. The offsets must start at 0, be
// non-decreasing and fit in an int. Consistency with the previous level is not checked; call
// Validate once the index is complete.
func (l *LoD) PushLevel(offsets []uint64) error {
	if err := checkOffsets(offsets); err != nil {
		return err
	}
	l.levels = append(l.levels, memory.New(l.ctx, offsets))
	return nil
}

// NumLevels returns the number of levels.
func (l *LoD) NumLevels() int {
	return len(l.levels)
}

// Context returns the accelerator context levels are created on.
func (l *LoD) Context() device.Context {
	return l.ctx
}

// Level returns level k.
func (l *LoD) Level(k int) (*Level, error) {
	if k < 0 || k >= len(l.levels) {
		return nil, &memory.BoundsError{What: "level", Index: k, Len: len(l.levels)}
	}
	return l.levels[k], nil
}

// NumElements returns the number of ranges at level k.
func (l *LoD) NumElements(k int) (int, error) {
	lvl, err := l.Level(k)
	if err != nil {
		return 0, err
	}
	if lvl.Len() == 0 {
		return 0, nil
	}
	return lvl.Len() - 1, nil
}

// ElementRange returns the half-open range [start, end) of element index at level.
// Offsets are read through the host view, synchronizing from the device if needed.
func (l *LoD) ElementRange(level, index int) (start, end int, err error) {
	lvl, err := l.Level(level)
	if err != nil {
		return 0, 0, err
	}
	if index < 0 || index+1 >= lvl.Len() {
		return 0, 0, &memory.BoundsError{What: "element", Index: index, Len: max(lvl.Len()-1, 0)}
	}
	offsets, err := lvl.HostData()
	if err != nil {
		return 0, 0, err
	}
	return int(offsets[index]), int(offsets[index+1]), nil
}

// Validate checks cross-level consistency: every level starts at 0 and is
// non-decreasing, and the last offset of each level equals the number of ranges
// of the next level.
func (l *LoD) Validate() error {
	var prevLast uint64
	for k, lvl := range l.levels {
		offsets, err := lvl.HostData()
		if err != nil {
			return err
		}
		if err := checkOffsets(offsets); err != nil {
			return fmt.Errorf("%w: level %d: %w", ErrInconsistent, k, err)
		}
		if k > 0 {
			if n := uint64(len(offsets) - 1); prevLast != n {
				return fmt.Errorf("%w: level %d ends at %d but level %d has %d ranges",
					ErrInconsistent, k-1, prevLast, k, n)
			}
		}
		prevLast = offsets[len(offsets)-1]
	}
	return nil
}

// NumFlatElements returns the last offset of the innermost level, the number of
// flat data elements the index covers. It is 0 for an empty index.
func (l *LoD) NumFlatElements() (int, error) {
	if len(l.levels) == 0 {
		return 0, nil
	}
	offsets, err := l.levels[len(l.levels)-1].HostData()
	if err != nil {
		return 0, err
	}
	if len(offsets) == 0 {
		return 0, fmt.Errorf("%w: innermost level is empty", ErrInconsistent)
	}
	return int(offsets[len(offsets)-1]), nil
}

// Offsets returns copies of all levels.
func (l *LoD) Offsets() ([][]uint64, error) {
	out := make([][]uint64, len(l.levels))
	for k, lvl := range l.levels {
		offsets, err := lvl.ToSlice()
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", k, err)
		}
		out[k] = offsets
	}
	return out, nil
}

// Clone returns a deep copy on the same context.
func (l *LoD) Clone() (*LoD, error) {
	return l.SliceLevels(0, len(l.levels))
}

// Equal reports whether both indexes have the same levels.
func (l *LoD) Equal(other *LoD) (bool, error) {
	if len(l.levels) != len(other.levels) {
		return false, nil
	}
	for k := range l.levels {
		eq, err := l.levels[k].Equal(other.levels[k])
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// String formats the index as nested offset lists, e.g. "[[0 2 3] [0 1 4 6]]".
func (l *LoD) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for k, lvl := range l.levels {
		if k > 0 {
			sb.WriteByte(' ')
		}
		offsets, err := lvl.HostData()
		if err != nil {
			sb.WriteString("<" + err.Error() + ">")
			continue
		}
		fmt.Fprint(&sb, offsets)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Release frees every level.
func (l *LoD) Release() {
	for _, lvl := range l.levels {
		lvl.Release()
	}
	l.levels = nil
}

func checkOffsets(offsets []uint64) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: no offsets", ErrInvalidLevel)
	}
	if offsets[0] != 0 {
		return fmt.Errorf("%w: first offset is %d, want 0", ErrInvalidLevel, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: offset %d (%d) < offset %d (%d)",
				ErrInvalidLevel, i, offsets[i], i-1, offsets[i-1])
		}
	}
	if last := offsets[len(offsets)-1]; last > math.MaxInt {
		return fmt.Errorf("%w: offset %d exceeds %d", ErrInvalidLevel, last, math.MaxInt)
	}
	return nil
}
