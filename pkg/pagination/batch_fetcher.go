package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/adserver-client/pkg/statement"
)

// pageResult is the result of fetching the page at one offset.
type pageResult[T any] struct {
	Offset uint32
	Page   Page[T]
	Error  error
}

// FetchAll is Enumerate with the pages after the first fetched in parallel.
// Each worker builds its own statement from a copy of b, so fetch must be
// safe for concurrent use. Any page failure fails the whole call.
func (e *Executor[T]) FetchAll(ctx context.Context, b *statement.Builder) (*Enumeration[T], error) {
	start := time.Now()

	cur, err := e.Cursor(b)
	if err != nil {
		return nil, err
	}

	// First page determines the total.
	first, err := cur.Next(ctx)
	if err != nil {
		return nil, err
	}

	filter := b.Clone().RemoveLimitAndOffset()
	if cur.Done() {
		e.report(0, first)
		return &Enumeration[T]{Total: cur.Total(), Records: first.Results, Pages: 1, filter: filter}, nil
	}

	total := cur.Total()
	var offsets []uint32
	for off := uint64(e.config.PageSize); off < uint64(total); off += uint64(e.config.PageSize) {
		offsets = append(offsets, uint32(off))
	}

	e.logger.Info().
		Uint32("total", total).
		Int("pages", len(offsets)+1).
		Int("workers", e.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan uint32, len(offsets))
	for _, off := range offsets {
		pageQueue <- off
	}
	close(pageQueue)

	results := make(chan pageResult[T], len(offsets))

	var wg sync.WaitGroup
	for i := 0; i < e.config.MaxConcurrency && i < len(offsets); i++ {
		wg.Add(1)
		go e.worker(ctx, b, pageQueue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := map[uint32]Page[T]{0: first}
	latest := pageResult[T]{Page: first}
	var firstErr error
	for result := range results {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = result.Error
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		if err := e.checkDrift(result.Offset, total, result.Page); err != nil {
			firstErr = err
			cancel()
			continue
		}
		pages[result.Offset] = result.Page
		if result.Offset >= latest.Offset {
			latest = result
		}
	}

	if firstErr == nil && len(pages) != len(offsets)+1 {
		// Workers stop without a result only when ctx ended.
		firstErr = ctx.Err()
		if firstErr == nil {
			firstErr = fmt.Errorf("fetched %d of %d pages", len(pages), len(offsets)+1)
		}
	}
	if firstErr != nil {
		return nil, newError(TransportFault, "fetch all", firstErr)
	}

	// A grown total leaves pages past the planned offsets; fetch them in order.
	next := uint64(latest.Offset) + uint64(e.config.PageSize)
	for len(latest.Page.Results) > 0 && next < uint64(latest.Page.TotalResultSetSize) {
		offset := uint32(next)
		page, err := e.fetchPage(ctx, b, offset)
		if err != nil {
			return nil, newError(TransportFault, "fetch all", err)
		}
		if err := e.checkDrift(offset, latest.Page.TotalResultSetSize, page); err != nil {
			return nil, err
		}
		pages[offset] = page
		latest = pageResult[T]{Offset: offset, Page: page}
		next += uint64(e.config.PageSize)
	}

	keys := make([]uint32, 0, len(pages))
	for off := range pages {
		keys = append(keys, off)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var records []T
	for _, off := range keys {
		e.report(off, pages[off])
		records = append(records, pages[off].Results...)
	}

	// Same result as Cursor: the newest total, or the records seen when the
	// last page came back empty. Never more than was seen.
	finalTotal := latest.Page.TotalResultSetSize
	if n := uint32(len(records)); len(latest.Page.Results) == 0 || finalTotal > n {
		finalTotal = n
	}

	recordsEnumerated.Observe(float64(len(records)))
	e.logger.Info().
		Uint32("total", finalTotal).
		Int("pages", len(pages)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return &Enumeration[T]{Total: finalTotal, Records: records, Pages: len(pages), filter: filter}, nil
}

// checkDrift applies the drift policy to a page whose total differs from
// expected or that came back empty.
func (e *Executor[T]) checkDrift(offset, expected uint32, page Page[T]) error {
	if page.TotalResultSetSize == expected && len(page.Results) > 0 {
		return nil
	}

	totalDriftTotal.WithLabelValues(string(e.config.DriftPolicy)).Inc()
	if e.config.DriftPolicy == DriftFail {
		return newError(ExhaustionAnomaly, "fetch all",
			fmt.Errorf("%w at offset %d: %d -> %d", ErrTotalChanged, offset, expected, page.TotalResultSetSize))
	}

	e.logger.Warn().
		Uint32("offset", offset).
		Uint32("previous_total", expected).
		Uint32("total", page.TotalResultSetSize).
		Int("results", len(page.Results)).
		Msg("Total result set size changed during parallel fetch")
	return nil
}

// fetchPage fetches the page at offset with the per-page timeout.
func (e *Executor[T]) fetchPage(ctx context.Context, b *statement.Builder, offset uint32) (Page[T], error) {
	stmt, err := b.Clone().Limit(e.config.PageSize).Offset(offset).ToStatement()
	if err != nil {
		return Page[T]{}, newError(PreconditionViolation, "fetch all", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	page, err := e.fetch(pageCtx, stmt)
	if err != nil {
		return Page[T]{}, err
	}
	pagesFetchedTotal.Inc()
	return page, nil
}

// report passes the records of one page to the OnRecord callback.
func (e *Executor[T]) report(offset uint32, page Page[T]) {
	if e.onRecord == nil {
		return
	}
	startIndex := page.StartIndex
	if startIndex == 0 {
		startIndex = offset
	}
	for i, r := range page.Results {
		e.onRecord(startIndex+uint32(i), r)
	}
}

// worker processes offsets from the queue
func (e *Executor[T]) worker(ctx context.Context, b *statement.Builder, pageQueue <-chan uint32, results chan<- pageResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for offset := range pageQueue {
		select {
		case <-ctx.Done():
			e.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			results <- pageResult[T]{Offset: offset, Error: ctx.Err()}
			return
		default:
		}

		page, err := e.fetchPage(ctx, b, offset)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Uint32("offset", offset).
				Msg("Page fetch failed")
			results <- pageResult[T]{Offset: offset, Error: err}
			return
		}

		// results is buffered for every offset, so sends never block.
		results <- pageResult[T]{Offset: offset, Page: page}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
