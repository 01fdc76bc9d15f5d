// Package statement builds the query descriptors sent to ad server
// "...ByStatement" and "perform...Action" calls.
//
// A Builder collects a WHERE clause with named placeholders (":name"),
// an ORDER BY clause, bind values and a LIMIT/OFFSET window. ToStatement
// freezes it into the wire form:
//
//	b := statement.NewBuilder().
//		Where("entityId = :entityId and type = :type").
//		OrderBy("id ASC").
//		WithBindVariable("entityId", statement.Integer(42)).
//		WithBindVariable("type", statement.Enum("WORKFLOW_APPROVAL_REQUEST")).
//		Limit(statement.SuggestedPageLimit)
//
//	stmt, err := b.ToStatement()
package statement

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// SuggestedPageLimit is the page size the ad server recommends.
	SuggestedPageLimit uint32 = 500

	// MaxPageLimit is the largest LIMIT the ad server accepts.
	MaxPageLimit uint32 = 500
)

var (
	// ErrUnboundVariable is returned when the filter references a placeholder with no value.
	ErrUnboundVariable = errors.New("unbound bind variable")

	// ErrLimitTooLarge is returned when the limit exceeds MaxPageLimit.
	ErrLimitTooLarge = errors.New("limit exceeds maximum page size")

	// ErrInvalidValue is returned for a zero or unknown Value.
	ErrInvalidValue = errors.New("invalid bind value")
)

var placeholderRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Statement is the frozen, wire-ready form of a Builder.
type Statement struct {
	Query  string     `json:"query"`
	Values []KeyValue `json:"values,omitempty"`
}

// KeyValue is one bind variable in wire form.
type KeyValue struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Builder assembles a Statement. Methods return the builder for chaining.
// The zero value is an empty builder. A Builder is not safe for concurrent
// use; use Clone to hand out copies.
type Builder struct {
	where   string
	orderBy string
	values  map[string]Value
	limit   *uint32
	offset  *uint32
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[string]Value)}
}

// Where sets the filter clause. A leading "WHERE" keyword is optional.
func (b *Builder) Where(clause string) *Builder {
	b.where = stripKeyword(clause, "WHERE")
	return b
}

// OrderBy sets the ordering clause. A leading "ORDER BY" keyword is optional.
func (b *Builder) OrderBy(clause string) *Builder {
	b.orderBy = stripKeyword(clause, "ORDER BY")
	return b
}

// WithBindVariable binds a value to the placeholder name (without the colon).
func (b *Builder) WithBindVariable(name string, v Value) *Builder {
	if b.values == nil {
		b.values = make(map[string]Value)
	}
	b.values[strings.TrimPrefix(name, ":")] = v
	return b
}

// Limit sets the page size.
func (b *Builder) Limit(n uint32) *Builder {
	b.limit = &n
	return b
}

// Offset sets the window start.
func (b *Builder) Offset(n uint32) *Builder {
	b.offset = &n
	return b
}

// IncreaseOffsetBy advances the offset, treating an unset offset as 0.
func (b *Builder) IncreaseOffsetBy(n uint32) *Builder {
	next := b.GetOffset() + n
	b.offset = &next
	return b
}

// GetOffset returns the current offset, 0 when unset.
func (b *Builder) GetOffset() uint32 {
	if b.offset == nil {
		return 0
	}
	return *b.offset
}

// GetLimit returns the limit and whether one is set.
func (b *Builder) GetLimit() (uint32, bool) {
	if b.limit == nil {
		return 0, false
	}
	return *b.limit, true
}

// HasWindow reports whether a limit or an offset is set.
func (b *Builder) HasWindow() bool {
	return b.limit != nil || b.offset != nil
}

// RemoveLimitAndOffset clears the window so the statement addresses the
// whole filtered set.
func (b *Builder) RemoveLimitAndOffset() *Builder {
	b.limit = nil
	b.offset = nil
	return b
}

// Clone returns an independent copy.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		where:   b.where,
		orderBy: b.orderBy,
		values:  make(map[string]Value, len(b.values)),
	}
	for k, v := range b.values {
		c.values[k] = v
	}
	if b.limit != nil {
		l := *b.limit
		c.limit = &l
	}
	if b.offset != nil {
		o := *b.offset
		c.offset = &o
	}
	return c
}

// Validate checks the builder invariants without producing a Statement.
func (b *Builder) Validate() error {
	if b.limit != nil && *b.limit > MaxPageLimit {
		return fmt.Errorf("%w: %d > %d", ErrLimitTooLarge, *b.limit, MaxPageLimit)
	}

	for _, name := range Placeholders(b.where) {
		v, ok := b.values[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnboundVariable, name)
		}
		if !v.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidValue, name)
		}
	}
	return nil
}

// ToStatement freezes the builder into its wire form.
func (b *Builder) ToStatement() (Statement, error) {
	if err := b.Validate(); err != nil {
		return Statement{}, err
	}

	var parts []string
	if b.where != "" {
		parts = append(parts, "WHERE "+b.where)
	}
	if b.orderBy != "" {
		parts = append(parts, "ORDER BY "+b.orderBy)
	}
	if b.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *b.limit))
	}
	if b.offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET %d", *b.offset))
	}

	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		values = append(values, KeyValue{Key: k, Value: b.values[k]})
	}

	return Statement{Query: strings.Join(parts, " "), Values: values}, nil
}

// Placeholders returns the distinct placeholder names referenced in clause,
// in order of first appearance. Quoted literals are skipped.
func Placeholders(clause string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, segment := range unquoted(clause) {
		for _, m := range placeholderRe.FindAllStringSubmatch(segment, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// unquoted splits s on single-quoted literals and returns the pieces outside them.
func unquoted(s string) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '\'' {
			continue
		}
		if !inQuote {
			out = append(out, s[start:i])
		}
		inQuote = !inQuote
		start = i + 1
	}
	if !inQuote {
		out = append(out, s[start:])
	}
	return out
}

func stripKeyword(clause, keyword string) string {
	clause = strings.TrimSpace(clause)
	if len(clause) >= len(keyword) && strings.EqualFold(clause[:len(keyword)], keyword) {
		clause = strings.TrimSpace(clause[len(keyword):])
	}
	return clause
}
