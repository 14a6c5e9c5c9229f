package buffer

// Index is a position in a buffer, counted either from the start or
// backwards from the logical length.
type Index struct {
	Value   int
	FromEnd bool
}

// Idx returns an index counted from the start of the buffer.
func Idx(i int) Index {
	return Index{Value: i}
}

// FromEnd returns an index counted backwards from the logical length,
// i.e. FromEnd(1) is the last written element.
func FromEnd(i int) Index {
	return Index{Value: i, FromEnd: true}
}

func (i Index) resolve(length int) int {
	if i.FromEnd {
		return length - i.Value
	}
	return i.Value
}

// Range is a half-open [Start, End) window over a buffer.
type Range struct {
	Start Index
	End   Index
}

// Span returns the range [start, end).
func Span(start, end int) Range {
	return Range{Start: Idx(start), End: Idx(end)}
}

// SpanFrom returns the range from start to the logical length.
func SpanFrom(start int) Range {
	return Range{Start: Idx(start), End: FromEnd(0)}
}

// All returns the range covering all written data.
func All() Range {
	return Range{Start: Idx(0), End: FromEnd(0)}
}

func (r Range) resolve(length int) (start, end int) {
	return r.Start.resolve(length), r.End.resolve(length)
}
