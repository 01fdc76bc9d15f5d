package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/Sternrassler/adserver-client/pkg/statement"
	"github.com/rs/zerolog"
)

// Page is one batch of results returned by a "...ByStatement" call.
type Page[T any] struct {
	Results            []T    `json:"results"`
	StartIndex         uint32 `json:"startIndex"`
	TotalResultSetSize uint32 `json:"totalResultSetSize"`
}

// FetchFunc performs the remote query for one statement window.
type FetchFunc[T any] func(ctx context.Context, stmt statement.Statement) (Page[T], error)

// DriftPolicy decides what happens when TotalResultSetSize changes between pages.
type DriftPolicy string

const (
	// DriftTolerate logs a warning and continues with the newest total.
	DriftTolerate DriftPolicy = "tolerate"

	// DriftFail stops enumeration with an ExhaustionAnomaly error.
	DriftFail DriftPolicy = "fail"
)

// Config holds executor configuration
type Config struct {
	// PageSize is the LIMIT of every page request.
	PageSize uint32

	// DriftPolicy applies when the server total changes mid-enumeration.
	DriftPolicy DriftPolicy

	// MaxConcurrency bounds parallel page requests in FetchAll.
	MaxConcurrency int

	// Timeout per page fetch in FetchAll
	Timeout time.Duration
}

// DefaultConfig returns the configuration recommended by the ad server.
func DefaultConfig() Config {
	return Config{
		PageSize:       statement.SuggestedPageLimit,
		DriftPolicy:    DriftTolerate,
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Executor enumerates a remote collection page by page.
type Executor[T any] struct {
	fetch    FetchFunc[T]
	config   Config
	logger   zerolog.Logger
	onRecord func(index uint32, record T)
}

// NewExecutor creates an executor. Zero fields in config fall back to DefaultConfig.
func NewExecutor[T any](fetch FetchFunc[T], config Config) *Executor[T] {
	def := DefaultConfig()
	if config.PageSize == 0 {
		config.PageSize = def.PageSize
	}
	if config.DriftPolicy == "" {
		config.DriftPolicy = def.DriftPolicy
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	return &Executor[T]{
		fetch:  fetch,
		config: config,
		logger: logging.NewLogger(logging.ComponentPagination),
	}
}

// WithLogger replaces the executor logger.
func (e *Executor[T]) WithLogger(logger zerolog.Logger) *Executor[T] {
	e.logger = logger
	return e
}

// OnRecord registers a callback invoked for every record in server order,
// with its absolute index in the result set.
func (e *Executor[T]) OnRecord(fn func(index uint32, record T)) *Executor[T] {
	e.onRecord = fn
	return e
}

// Enumeration is the outcome of a completed enumeration.
type Enumeration[T any] struct {
	// Total is the final total result set size.
	Total uint32

	// Records holds every record observed, in server order.
	Records []T

	// Pages is the number of fetch calls made.
	Pages int

	filter *statement.Builder
}

// Filter returns a copy of the enumerated filter with limit and offset removed.
func (en *Enumeration[T]) Filter() *statement.Builder {
	return en.filter.Clone()
}

// Enumerate fetches every page matching b and returns all records.
// b is not modified; it must have no offset or an offset of 0.
func (e *Executor[T]) Enumerate(ctx context.Context, b *statement.Builder) (*Enumeration[T], error) {
	start := time.Now()

	cur, err := e.Cursor(b)
	if err != nil {
		return nil, err
	}

	var records []T
	for !cur.Done() {
		page, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		for i, r := range page.Results {
			if e.onRecord != nil {
				e.onRecord(page.StartIndex+uint32(i), r)
			}
			records = append(records, r)
		}
	}

	recordsEnumerated.Observe(float64(len(records)))
	e.logger.Debug().
		Uint32("total", cur.Total()).
		Int("pages", cur.Pages()).
		Dur("duration", time.Since(start)).
		Msg("Enumeration complete")

	return &Enumeration[T]{
		Total:   cur.Total(),
		Records: records,
		Pages:   cur.Pages(),
		filter:  b.Clone().RemoveLimitAndOffset(),
	}, nil
}

// Enumerate runs a one-off enumeration with the given page size.
func Enumerate[T any](ctx context.Context, b *statement.Builder, pageSize uint32, fetch FetchFunc[T]) (*Enumeration[T], error) {
	if pageSize == 0 {
		return nil, newError(PreconditionViolation, "enumerate", ErrInvalidPageSize)
	}
	return NewExecutor(fetch, Config{PageSize: pageSize}).Enumerate(ctx, b)
}

// Cursor validates b and returns a cursor positioned at offset 0.
func (e *Executor[T]) Cursor(b *statement.Builder) (*Cursor[T], error) {
	if e.config.PageSize > statement.MaxPageLimit {
		return nil, newError(PreconditionViolation, "enumerate",
			fmt.Errorf("%w: %d > %d", ErrInvalidPageSize, e.config.PageSize, statement.MaxPageLimit))
	}
	if b.GetOffset() != 0 {
		return nil, newError(PreconditionViolation, "enumerate", ErrOffsetNotZero)
	}

	owned := b.Clone().Limit(e.config.PageSize).Offset(0)
	if err := owned.Validate(); err != nil {
		return nil, newError(PreconditionViolation, "enumerate", err)
	}

	return &Cursor[T]{
		fetch:    e.fetch,
		builder:  owned,
		pageSize: e.config.PageSize,
		policy:   e.config.DriftPolicy,
		logger:   e.logger,
	}, nil
}

// ActionResult is the server response to a bulk action.
type ActionResult struct {
	NumChanges uint32           `json:"numChanges"`
	Failures   []PartialFailure `json:"failures,omitempty"`
}

// PartialFailure describes one record the action could not be applied to.
type PartialFailure struct {
	Index  uint32 `json:"index"`
	Reason string `json:"reason"`
}

// PerformFunc performs a remote bulk action over every record matching stmt.
type PerformFunc[A any] func(ctx context.Context, action A, stmt statement.Statement) (ActionResult, error)

// Outcome tells a caller whether a bulk action ran and whether it changed anything.
type Outcome string

const (
	NotAttempted Outcome = "not_attempted"
	NoChanges    Outcome = "no_changes"
	Changed      Outcome = "changed"
)

// BulkResult is returned by ApplyBulkAction.
type BulkResult struct {
	Outcome Outcome
	ActionResult
}

// ApplyBulkAction performs action over the whole filter of a completed,
// non-empty enumeration. Collaborator errors are returned wrapped as
// TransportFault and are not retried.
func ApplyBulkAction[T, A any](ctx context.Context, en *Enumeration[T], action A, perform PerformFunc[A]) (BulkResult, error) {
	notAttempted := BulkResult{Outcome: NotAttempted}

	if en == nil || en.filter == nil {
		return notAttempted, newError(PreconditionViolation, "bulk action", ErrNotEnumerated)
	}
	if en.Total == 0 {
		return notAttempted, newError(PreconditionViolation, "bulk action", ErrEmptyResultSet)
	}

	filter := en.Filter()
	if filter.HasWindow() {
		return notAttempted, newError(PreconditionViolation, "bulk action", ErrWindowPresent)
	}
	stmt, err := filter.ToStatement()
	if err != nil {
		return notAttempted, newError(PreconditionViolation, "bulk action", err)
	}

	result, err := perform(ctx, action, stmt)
	if err != nil {
		bulkActionsTotal.WithLabelValues("error").Inc()
		return notAttempted, newError(TransportFault, "bulk action", err)
	}

	outcome := NoChanges
	if result.NumChanges > 0 {
		outcome = Changed
	}
	bulkActionsTotal.WithLabelValues(string(outcome)).Inc()

	return BulkResult{Outcome: outcome, ActionResult: result}, nil
}
