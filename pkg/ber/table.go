package ber

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

// ErrDuplicateTag is returned when a table or schema lists a tag twice.
var ErrDuplicateTag = errors.New("ber: duplicate tag")

// Handler consumes the content of one data object.
type Handler[T any] func(content []byte, ctx T) error

// Entry binds a tag to its handler.
type Entry[T any] struct {
	Tag    Tag
	Handle Handler[T]
}

// Table is a tag-indexed set of handlers. Entries are sorted once at
// construction and looked up by binary search.
type Table[T any] struct {
	entries []Entry[T]
}

// NewTable builds a table from entries given in any order.
func NewTable[T any](entries ...Entry[T]) (*Table[T], error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry[T]) int { return cmp.Compare(a.Tag, b.Tag) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Tag == sorted[i-1].Tag {
			return nil, errors.Wrapf(ErrDuplicateTag, "tag %s", sorted[i].Tag)
		}
	}
	return &Table[T]{entries: sorted}, nil
}

// MustTable is like NewTable but panics on a duplicate tag. It is meant for
// package level tables.
func MustTable[T any](entries ...Entry[T]) *Table[T] {
	t, err := NewTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the handler registered for tag.
func (t *Table[T]) Lookup(tag Tag) (Handler[T], bool) {
	i, ok := slices.BinarySearchFunc(t.entries, tag, func(e Entry[T], tag Tag) int { return cmp.Compare(e.Tag, tag) })
	if !ok {
		return nil, false
	}
	return t.entries[i].Handle, true
}

// Dispatch decodes the sibling data objects of buf and hands the content of
// each known tag to its handler. Unknown tags are skipped: cards routinely
// add proprietary objects. It returns the number of objects handled.
func (t *Table[T]) Dispatch(buf []byte, ctx T) (int, error) {
	n := 0
	for len(buf) > 0 {
		b, rest, err := DecodeBlock(buf)
		if err != nil {
			return n, err
		}
		if handle, ok := t.Lookup(b.Tag); ok && handle != nil {
			if err := handle(b.Content, ctx); err != nil {
				return n, errors.Wrapf(err, "tag %s", b.Tag)
			}
			n++
		}
		buf = rest
	}
	return n, nil
}
