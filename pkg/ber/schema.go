package ber

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// SCHEMA VALIDATION:
// A Schema describes which tags may appear at one level of a message and
// how often. Rules come in two shapes:
//
//   - Template rules describe constructed objects. They may repeat only
//     when flagged Sequence.
//   - Fixed rules describe primitive fields. They appear at most once.
//
// A rule is mandatory unless it is flagged Optional or Union. CheckSize
// bounds the content length to [Min, Max]. Tags without a rule are
// ignored, as they are by Dispatch.

// ErrSchemaViolation matches every *SchemaViolation.
var ErrSchemaViolation = errors.New("ber: schema violation")

// Flags qualify a schema rule. Union and Sequence only apply to templates.
type Flags uint

const (
	Template Flags = 1 << iota
	Union
	Sequence
	Optional
	CheckSize
)

// Type is the value type a rule documents for its field. For TypeInt,
// Min is the width in octets.
type Type int

const (
	TypeBlob Type = iota
	TypeOctet
	TypeInt
)

// Rule constrains one tag.
type Rule struct {
	Tag   Tag
	Flags Flags
	Min   int
	Max   int
	Type  Type
	Label string
}

func (r Rule) mandatory() bool {
	return r.Flags&(Optional|Union) == 0
}

// Schema is a sorted set of rules.
type Schema struct {
	rules []Rule
}

// NewSchema builds a schema from rules given in any order.
func NewSchema(rules ...Rule) (*Schema, error) {
	sorted := slices.Clone(rules)
	slices.SortFunc(sorted, func(a, b Rule) int { return cmp.Compare(a.Tag, b.Tag) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Tag == sorted[i-1].Tag {
			return nil, errors.Wrapf(ErrDuplicateTag, "rule %q", sorted[i].Label)
		}
	}
	return &Schema{rules: sorted}, nil
}

// MustSchema is like NewSchema but panics on a duplicate tag.
func MustSchema(rules ...Rule) *Schema {
	s, err := NewSchema(rules...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) find(tag Tag) (int, bool) {
	return slices.BinarySearchFunc(s.rules, tag, func(r Rule, tag Tag) int { return cmp.Compare(r.Tag, tag) })
}

// Constraint is what Validate observed for one rule: the number of
// occurrences and the content length of the last one.
type Constraint struct {
	Count int
	Len   int
}

// Counts maps each tag seen by Validate to its observed constraint.
type Counts map[Tag]Constraint

// ViolationKind classifies a schema violation.
type ViolationKind int

const (
	NotSequence ViolationKind = iota
	MultiplyDefined
	SizeViolation
	MissingMandatory
)

func (k ViolationKind) String() string {
	switch k {
	case NotSequence:
		return "not expecting sequence"
	case MultiplyDefined:
		return "multiply defined"
	case SizeViolation:
		return "violates size constraint"
	case MissingMandatory:
		return "mandatory tag missing"
	default:
		return fmt.Sprintf("ViolationKind(%d)", int(k))
	}
}

// SchemaViolation identifies the rule a message broke.
type SchemaViolation struct {
	Tag   Tag
	Label string
	Kind  ViolationKind
	// Len is the offending content length for SizeViolation.
	Len int
}

func (e *SchemaViolation) Error() string {
	if e.Kind == SizeViolation {
		return fmt.Sprintf("ber: %s (%s): %s: length %d", e.Label, e.Tag, e.Kind, e.Len)
	}
	return fmt.Sprintf("ber: %s (%s): %s", e.Label, e.Tag, e.Kind)
}

func (e *SchemaViolation) Is(target error) bool { return target == ErrSchemaViolation }

// Validate checks the sibling data objects of buf against the schema.
func (s *Schema) Validate(buf []byte) (Counts, error) {
	counts := make(Counts)
	for len(buf) > 0 {
		b, rest, err := DecodeBlock(buf)
		if err != nil {
			return counts, err
		}
		buf = rest

		i, ok := s.find(b.Tag)
		if !ok {
			continue
		}
		r := s.rules[i]
		c := counts[r.Tag]

		if c.Count > 0 {
			switch {
			case r.Flags&Template == 0:
				return counts, &SchemaViolation{Tag: r.Tag, Label: r.Label, Kind: MultiplyDefined}
			case r.Flags&Sequence == 0:
				return counts, &SchemaViolation{Tag: r.Tag, Label: r.Label, Kind: NotSequence}
			}
		}
		c.Count++
		c.Len = b.Len
		counts[r.Tag] = c

		if r.Flags&CheckSize != 0 && (b.Len < r.Min || b.Len > r.Max) {
			return counts, &SchemaViolation{Tag: r.Tag, Label: r.Label, Kind: SizeViolation, Len: b.Len}
		}
	}

	for _, r := range s.rules {
		if r.mandatory() && counts[r.Tag].Count == 0 {
			return counts, &SchemaViolation{Tag: r.Tag, Label: r.Label, Kind: MissingMandatory}
		}
	}
	return counts, nil
}
