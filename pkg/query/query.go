// Package query implements the filter mini-language used by the landscape
// tools: a whitespace-separated sequence of field:value clauses combined
// with logical AND, evaluated locally against fetched records.
//
// Grammar examples:
//
//	tag:production tag:web-server
//	distribution:24.04 needs:reboot:true
//	status:succeeded created-after:2026-01-20
//	web-01                       (bare token: free-text match on the default field)
//
// There is no OR and no negation. A value may itself contain colons
// (timestamps); the token is split on the first colon after the longest
// recognized field name, which is how needs:reboot:true parses as the field
// needs:reboot with value true.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is the narrow field-accessor capability the interpreter needs.
// Field returns the named field's value and whether the record carries it.
// All landscape record types implement it; the interpreter has no
// operation-specific knowledge beyond this lookup.
type Record interface {
	Field(name string) (any, bool)
}

// MatchKind selects the comparison semantics for a field.
type MatchKind int

const (
	// MatchExact compares the string form of the field for equality,
	// case-sensitive.
	MatchExact MatchKind = iota
	// MatchSubstring is a case-sensitive substring test, so
	// distribution:24.04 matches "Ubuntu 24.04 LTS".
	MatchSubstring
	// MatchTag tests membership of the value in the record's tag list.
	MatchTag
	// MatchBool requires the value to be the literal true or false and
	// compares it to a boolean field.
	MatchBool
	// MatchDateAfter parses the value as a date and requires the record's
	// timestamp to be at or after it.
	MatchDateAfter
)

// FieldSpec declares one recognized filter field.
type FieldSpec struct {
	Name  string
	Match MatchKind
}

// DefaultFields is the recognized filter vocabulary. The table is consulted
// by longest name first so field names containing colons win over a naive
// first-colon split.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{Name: "tag", Match: MatchTag},
		{Name: "hostname", Match: MatchExact},
		{Name: "title", Match: MatchSubstring},
		{Name: "id", Match: MatchExact},
		{Name: "distribution", Match: MatchSubstring},
		{Name: "needs:reboot", Match: MatchBool},
		{Name: "access-group", Match: MatchExact},
		{Name: "status", Match: MatchExact},
		{Name: "type", Match: MatchExact},
		{Name: "severity", Match: MatchExact},
		{Name: "created-after", Match: MatchDateAfter},
	}
}

// DefaultFreeTextField is the field a bare token (no colon) matches against,
// as a substring.
const DefaultFreeTextField = "hostname"

// ParseError reports a malformed or unrecognized filter token. It is
// surfaced to the caller verbatim and never retried.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Token)
}

// Clause is one field:value constraint.
type Clause struct {
	Field string
	Value string

	match    MatchKind
	freeText bool
	boolVal  bool
	timeVal  time.Time
}

// Query is an ordered sequence of AND'd clauses. It is a per-invocation
// value object: constructed by Parse, evaluated, discarded.
type Query struct {
	clauses []Clause
}

// Clauses returns the parsed clauses in input order.
func (q Query) Clauses() []Clause { return q.clauses }

// IsEmpty reports whether the query has no clauses (identity filter).
func (q Query) IsEmpty() bool { return len(q.clauses) == 0 }

// Parser holds the recognized field table. The zero value is not usable;
// construct with NewParser or use the package-level Parse.
type Parser struct {
	fields        []FieldSpec // sorted by name length, longest first
	freeTextField string
}

// NewParser builds a parser over the given field vocabulary. The free-text
// field names which record field a bare token matches (substring).
func NewParser(fields []FieldSpec, freeTextField string) *Parser {
	sorted := make([]FieldSpec, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})
	return &Parser{fields: sorted, freeTextField: freeTextField}
}

var defaultParser = NewParser(DefaultFields(), DefaultFreeTextField)

// Parse parses a filter string with the default field vocabulary.
func Parse(text string) (Query, error) {
	return defaultParser.Parse(text)
}

// Parse turns a filter string into a Query. Tokens are separated by runs of
// whitespace; an empty or all-whitespace string yields the empty query.
func (p *Parser) Parse(text string) (Query, error) {
	var q Query
	for _, token := range strings.Fields(text) {
		clause, err := p.parseToken(token)
		if err != nil {
			return Query{}, err
		}
		q.clauses = append(q.clauses, clause)
	}
	return q, nil
}

func (p *Parser) parseToken(token string) (Clause, error) {
	// Longest recognized field first, so needs:reboot:true resolves the
	// field needs:reboot rather than the unknown field "needs".
	for _, spec := range p.fields {
		if rest, ok := strings.CutPrefix(token, spec.Name+":"); ok {
			return p.buildClause(spec, token, rest)
		}
	}

	if field, _, ok := strings.Cut(token, ":"); ok {
		return Clause{}, &ParseError{
			Token:  token,
			Reason: "unrecognized filter field: " + field,
		}
	}

	// Bare token: free-text match against the default field.
	return Clause{
		Field:    p.freeTextField,
		Value:    token,
		match:    MatchSubstring,
		freeText: true,
	}, nil
}

func (p *Parser) buildClause(spec FieldSpec, token, value string) (Clause, error) {
	if value == "" {
		return Clause{}, &ParseError{Token: token, Reason: "empty filter value"}
	}

	c := Clause{Field: spec.Name, Value: value, match: spec.Match}

	switch spec.Match {
	case MatchBool:
		b, err := strconv.ParseBool(value)
		if err != nil || (value != "true" && value != "false") {
			return Clause{}, &ParseError{
				Token:  token,
				Reason: "boolean filter value must be true or false",
			}
		}
		c.boolVal = b
	case MatchDateAfter:
		t, err := parseDate(value)
		if err != nil {
			return Clause{}, &ParseError{Token: token, Reason: "invalid date filter value"}
		}
		c.timeVal = t
	}

	return c, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}

// Evaluate returns the records where every clause matches, in input order.
// The empty query returns the input unchanged.
func (q Query) Evaluate(records []Record) []Record {
	if q.IsEmpty() {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (q Query) matches(r Record) bool {
	for _, c := range q.clauses {
		if !c.matches(r) {
			return false
		}
	}
	return true
}

func (c Clause) matches(r Record) bool {
	v, ok := r.Field(c.Field)
	if !ok {
		// Records that don't carry the field never match the clause.
		return false
	}

	switch c.match {
	case MatchExact:
		return fieldString(v) == c.Value
	case MatchSubstring:
		return strings.Contains(fieldString(v), c.Value)
	case MatchTag:
		tags, ok := v.([]string)
		if !ok {
			return false
		}
		for _, t := range tags {
			if t == c.Value {
				return true
			}
		}
		return false
	case MatchBool:
		b, ok := v.(bool)
		return ok && b == c.boolVal
	case MatchDateAfter:
		t, ok := v.(time.Time)
		return ok && !t.Before(c.timeVal)
	default:
		return false
	}
}

func fieldString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
