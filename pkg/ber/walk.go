package ber

import "github.com/pkg/errors"

// SkipChildren can be returned by a Visitor to stop Walk from descending
// into a constructed data object. Its siblings are still visited.
var SkipChildren = errors.New("ber: skip children")

// Visitor is called for every data object met by Walk, primitive or
// constructed, with the nesting depth of the object (0 at the top level).
type Visitor func(h Header, depth int, content []byte) error

// Walk visits the data objects of buf depth first. Siblings are visited in
// order and the content of a constructed object is walked before its next
// sibling. The first decode or visitor error stops the walk.
func Walk(buf []byte, v Visitor) error {
	return walk(buf, 0, v)
}

func walk(buf []byte, depth int, v Visitor) error {
	for len(buf) > 0 {
		h, content, rest, err := DecodeTagHeader(buf)
		if err != nil {
			return err
		}

		err = v(h, depth, content)
		switch {
		case err == SkipChildren:
		case err != nil:
			return err
		case h.Constructed:
			if err := walk(content, depth+1, v); err != nil {
				return err
			}
		}
		buf = rest
	}
	return nil
}
