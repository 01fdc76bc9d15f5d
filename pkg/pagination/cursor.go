package pagination

import (
	"context"
	"fmt"

	"github.com/Sternrassler/adserver-client/pkg/statement"
	"github.com/rs/zerolog"
)

// State is the enumeration state of a Cursor.
type State int

const (
	// Enumerating means more pages may follow.
	Enumerating State = iota

	// Done means the result set is exhausted or the cursor failed.
	Done
)

func (s State) String() string {
	if s == Done {
		return "done"
	}
	return "enumerating"
}

// Cursor steps through a result set one page at a time. It owns its
// statement window; callers never move the offset themselves.
type Cursor[T any] struct {
	fetch    FetchFunc[T]
	builder  *statement.Builder
	pageSize uint32
	policy   DriftPolicy
	logger   zerolog.Logger

	state State
	total uint32
	seen  uint32
	pages int
}

// State returns the current state.
func (c *Cursor[T]) State() State { return c.state }

// Done reports whether the cursor reached the Done state.
func (c *Cursor[T]) Done() bool { return c.state == Done }

// Total returns the last known total result set size.
func (c *Cursor[T]) Total() uint32 { return c.total }

// Pages returns the number of pages fetched so far.
func (c *Cursor[T]) Pages() int { return c.pages }

// Offset returns the offset of the next page request.
func (c *Cursor[T]) Offset() uint32 { return c.builder.GetOffset() }

// Next fetches the page at the current offset and advances the cursor.
func (c *Cursor[T]) Next(ctx context.Context) (Page[T], error) {
	if c.state == Done {
		return Page[T]{}, newError(PreconditionViolation, "next", ErrCursorDone)
	}

	offset := c.builder.GetOffset()
	stmt, err := c.builder.ToStatement()
	if err != nil {
		c.state = Done
		return Page[T]{}, newError(PreconditionViolation, "next", err)
	}

	page, err := c.fetch(ctx, stmt)
	if err != nil {
		c.state = Done
		c.logger.Warn().Err(err).Uint32("offset", offset).Msg("Page fetch failed")
		return Page[T]{}, newError(TransportFault, "next", err)
	}
	c.pages++
	pagesFetchedTotal.Inc()

	first := c.pages == 1
	n := uint32(len(page.Results))

	if n == 0 {
		c.state = Done
		if first {
			c.total = 0
			return page, nil
		}
		// Collection shrank below our offset.
		if err := c.drift(offset, c.seen); err != nil {
			return Page[T]{}, err
		}
		c.total = c.seen
		return page, nil
	}

	if !first && page.TotalResultSetSize != c.total {
		if err := c.drift(offset, page.TotalResultSetSize); err != nil {
			c.state = Done
			return Page[T]{}, err
		}
	}
	c.total = page.TotalResultSetSize
	c.seen += n

	c.logger.Debug().
		Uint32("offset", offset).
		Uint32("results", n).
		Uint32("total", c.total).
		Msg("Fetched page")

	next := offset + c.pageSize
	if next < offset || next >= c.total {
		c.state = Done
		return page, nil
	}
	c.builder.Offset(next)
	return page, nil
}

// drift applies the drift policy to a total change observed at offset.
func (c *Cursor[T]) drift(offset, newTotal uint32) error {
	totalDriftTotal.WithLabelValues(string(c.policy)).Inc()

	if c.policy == DriftFail {
		return newError(ExhaustionAnomaly, "next",
			fmt.Errorf("%w at offset %d: %d -> %d", ErrTotalChanged, offset, c.total, newTotal))
	}

	c.logger.Warn().
		Uint32("offset", offset).
		Uint32("previous_total", c.total).
		Uint32("total", newTotal).
		Msg("Total result set size changed during enumeration")
	return nil
}
