package codec

import (
	"fmt"
	"math"
)

const (
	// DefaultMinChunkSize is the smallest chunk the boundary policy produces (1 KiB).
	DefaultMinChunkSize = 1 << 10

	// DefaultMaxChunkSize is the largest chunk the boundary policy produces (1 MiB).
	DefaultMaxChunkSize = 1 << 20

	// MinChunkCount is the minimum number of chunks in a chunked stream. Each
	// chunk's key depends on two ring neighbours, so fewer would leave a chunk
	// keyed by its own plaintext.
	MinChunkCount = 3

	// MaxChunkSizeLimit is the largest MAX for which MinChunkCount*MAX does
	// not overflow.
	MaxChunkSizeLimit = math.MaxUint64 / MinChunkCount
)

// Params holds the chunk size thresholds of the boundary policy.
type Params struct {
	MinChunkSize uint64
	MaxChunkSize uint64
}

// DefaultParams returns MIN = 1 KiB, MAX = 1 MiB.
func DefaultParams() Params {
	return Params{
		MinChunkSize: DefaultMinChunkSize,
		MaxChunkSize: DefaultMaxChunkSize,
	}
}

// Validate checks that MIN is positive, MAX >= 2*MIN and 3*MAX fits in a
// uint64. The second bound guarantees the chunk before the last can always
// donate bytes to a short final chunk without itself dropping below MIN.
func (p Params) Validate() error {
	if p.MinChunkSize == 0 {
		return fmt.Errorf("%w: minimum chunk size must be positive", ErrInvalidParams)
	}
	if p.MaxChunkSize > MaxChunkSizeLimit {
		return fmt.Errorf("%w: maximum chunk size %d exceeds %d",
			ErrInvalidParams, p.MaxChunkSize, uint64(MaxChunkSizeLimit))
	}
	if p.MinChunkSize > p.MaxChunkSize/2 {
		return fmt.Errorf("%w: maximum chunk size %d must be at least twice the minimum %d",
			ErrInvalidParams, p.MaxChunkSize, p.MinChunkSize)
	}
	return nil
}

// Threshold returns the smallest stream length that is split into chunks.
func (p Params) Threshold() uint64 {
	return MinChunkCount * p.MinChunkSize
}

// Class is the shape a stream of a given length takes once sealed.
type Class uint8

const (
	// ClassEmpty is a zero-length stream.
	ClassEmpty Class = iota
	// ClassInline is a stream shorter than the chunking threshold, stored inline.
	ClassInline
	// ClassChunked is a stream split into at least MinChunkCount chunks.
	ClassChunked
)

// String returns a human-readable class name.
func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassInline:
		return "inline"
	case ClassChunked:
		return "chunked"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}

// Layout is the chunk boundary decision for one stream length. Boundaries
// depend on the length alone, never on content.
//
// Streams in [3*MIN, 3*MAX) split into exactly three near-equal chunks, the
// L%3 leftover bytes going one each to the trailing chunks. Longer streams use
// MAX-sized chunks with the final chunk absorbing the remainder; a remainder
// below MIN is topped up from the chunk before it.
type Layout struct {
	params Params
	length uint64
	class  Class
	count  int
	even   bool
}

// Layout applies the boundary policy to a stream of the given length.
func (p Params) Layout(length uint64) Layout {
	l := Layout{params: p, length: length}
	switch {
	case length == 0:
		l.class = ClassEmpty
	case length < p.Threshold():
		l.class = ClassInline
	case length < MinChunkCount*p.MaxChunkSize:
		l.class = ClassChunked
		l.count = MinChunkCount
		l.even = true
	default:
		l.class = ClassChunked
		l.count = int(length / p.MaxChunkSize)
		if length%p.MaxChunkSize != 0 {
			l.count++
		}
	}
	return l
}

// Length returns the stream length the layout was computed for.
func (l Layout) Length() uint64 { return l.length }

// Class returns the sealed shape of the stream.
func (l Layout) Class() Class { return l.class }

// Count returns the number of chunks; zero unless the class is ClassChunked.
func (l Layout) Count() int { return l.count }

// Size returns the length of chunk i.
func (l Layout) Size(i int) uint64 {
	if i < 0 || i >= l.count {
		return 0
	}
	idx := uint64(i)
	if l.even {
		base, extra := l.length/MinChunkCount, l.length%MinChunkCount
		if idx >= MinChunkCount-extra {
			return base + 1
		}
		return base
	}

	n := uint64(l.count)
	maxSize, minSize := l.params.MaxChunkSize, l.params.MinChunkSize
	last := l.length - (n-1)*maxSize
	var shortfall uint64
	if last < minSize {
		shortfall = minSize - last
	}
	switch idx {
	case n - 1:
		return last + shortfall
	case n - 2:
		return maxSize - shortfall
	default:
		return maxSize
	}
}

// Start returns the stream offset of chunk i. Start(Count()) is the stream length.
func (l Layout) Start(i int) uint64 {
	if i <= 0 || l.count == 0 {
		return 0
	}
	if i >= l.count {
		return l.length
	}
	idx := uint64(i)
	if l.even {
		base, extra := l.length/MinChunkCount, l.length%MinChunkCount
		start := base * idx
		if first := MinChunkCount - extra; idx > first {
			start += idx - first
		}
		return start
	}
	if i == l.count-1 {
		return l.length - l.Size(i)
	}
	return idx * l.params.MaxChunkSize
}

// IndexOf returns the index of the chunk containing offset. Offsets at or past
// the end map to the last chunk.
func (l Layout) IndexOf(offset uint64) int {
	if l.count == 0 {
		return 0
	}
	if offset >= l.length {
		return l.count - 1
	}
	if l.even {
		base, extra := l.length/MinChunkCount, l.length%MinChunkCount
		first := MinChunkCount - extra
		if boundary := base * first; offset >= boundary {
			return int(first + (offset-boundary)/(base+1))
		}
		return int(offset / base)
	}
	i := int(offset / l.params.MaxChunkSize)
	if i >= l.count-2 {
		if offset >= l.Start(l.count-1) {
			return l.count - 1
		}
		return l.count - 2
	}
	return i
}
