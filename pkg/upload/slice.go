package upload

import (
	"fmt"
	"iter"
)

// Slice is one PUT of an upload.
type Slice struct {
	RangeBegin  int64
	RangeEnd    int64
	TotalLength int64
}

// Len returns the slice size in bytes.
func (s Slice) Len() int64 {
	return s.RangeEnd - s.RangeBegin + 1
}

// ContentRange returns the Content-Range header value.
func (s Slice) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", s.RangeBegin, s.RangeEnd, s.TotalLength)
}

// planSlices lazily cuts ranges into contiguous slices of at most maxSize bytes.
func planSlices(ranges []Range, maxSize, totalLength int64) iter.Seq[Slice] {
	return func(yield func(Slice) bool) {
		for _, r := range ranges {
			for begin := r.Begin; begin <= r.End; begin += maxSize {
				end := min(begin+maxSize-1, r.End)
				if !yield(Slice{RangeBegin: begin, RangeEnd: end, TotalLength: totalLength}) {
					return
				}
			}
		}
	}
}
