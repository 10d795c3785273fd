package selfenc

import (
	"bytes"
	"slices"
	"sort"
)

// extent is a run of written bytes starting at off.
type extent struct {
	off  uint64
	data []byte
}

func (e extent) end() uint64 { return e.off + uint64(len(e.data)) }

// span is a half-open byte range [start, end).
type span struct {
	start, end uint64
}

// overlay holds bytes written since open as sorted, non-overlapping extents.
// Touching or overlapping writes are merged into one extent.
type overlay struct {
	extents []extent
}

// first returns the index of the first extent ending after off.
func (o *overlay) first(off uint64) int {
	return sort.Search(len(o.extents), func(i int) bool {
		return o.extents[i].end() > off
	})
}

// write stores p at off, replacing whatever the overlay held there.
//
// When the new range starts inside or right after an existing extent, that
// extent's buffer is extended in place with append growth, so sequential
// writes cost amortised O(len(p)). Only the bytes of p and of any later
// extents swallowed by the merge are copied.
func (o *overlay) write(off uint64, p []byte) {
	if len(p) == 0 {
		return
	}
	end := off + uint64(len(p))

	// Extents in [lo, hi) overlap or touch the new range.
	lo := sort.Search(len(o.extents), func(i int) bool {
		return o.extents[i].end() >= off
	})
	hi := lo
	for hi < len(o.extents) && o.extents[hi].off <= end {
		hi++
	}

	if lo == hi {
		o.extents = slices.Insert(o.extents, lo, extent{off: off, data: bytes.Clone(p)})
		return
	}

	first := o.extents[lo]
	mergedEnd := max(end, o.extents[hi-1].end())
	var merged extent
	if first.off <= off {
		// Grow the first extent; every byte past its old end is rewritten
		// below by a later extent or by p.
		size := int(mergedEnd - first.off)
		data := first.data
		if size > len(data) {
			data = slices.Grow(data, size-len(data))[:size]
		}
		merged = extent{off: first.off, data: data}
		for _, e := range o.extents[lo+1 : hi] {
			copy(merged.data[e.off-merged.off:], e.data)
		}
	} else {
		merged = extent{off: off, data: make([]byte, mergedEnd-off)}
		for _, e := range o.extents[lo:hi] {
			copy(merged.data[e.off-off:], e.data)
		}
	}
	copy(merged.data[off-merged.off:], p)

	o.extents[lo] = merged
	o.extents = slices.Delete(o.extents, lo+1, hi)
}

// apply copies overlay bytes in [off, off+len(dst)) over dst.
func (o *overlay) apply(off uint64, dst []byte) {
	end := off + uint64(len(dst))
	for i := o.first(off); i < len(o.extents) && o.extents[i].off < end; i++ {
		e := o.extents[i]
		from, to := max(e.off, off), min(e.end(), end)
		copy(dst[from-off:to-off], e.data[from-e.off:to-e.off])
	}
}

// gaps returns the sub-ranges of [start, end) the overlay does not cover.
func (o *overlay) gaps(start, end uint64) []span {
	var out []span
	cur := start
	for i := o.first(start); i < len(o.extents) && o.extents[i].off < end; i++ {
		e := o.extents[i]
		if e.off > cur {
			out = append(out, span{cur, e.off})
		}
		cur = max(cur, e.end())
	}
	if cur < end {
		out = append(out, span{cur, end})
	}
	return out
}

// intersects reports whether any written byte lies in [start, end).
func (o *overlay) intersects(start, end uint64) bool {
	i := o.first(start)
	return i < len(o.extents) && o.extents[i].off < end
}

// truncate drops every byte at or beyond size.
func (o *overlay) truncate(size uint64) {
	i := o.first(size)
	if i < len(o.extents) && o.extents[i].off < size {
		e := &o.extents[i]
		e.data = e.data[: size-e.off : size-e.off]
		i++
	}
	clear(o.extents[i:])
	o.extents = o.extents[:i]
}

// bytes returns the total number of bytes held.
func (o *overlay) bytes() uint64 {
	var n uint64
	for _, e := range o.extents {
		n += uint64(len(e.data))
	}
	return n
}
