// Package pagination enumerates ad server collections by statement and
// applies bulk actions to everything a statement's filter matches.
//
// The ad server returns results in windows of at most
// statement.MaxPageLimit records together with the total size of the
// matching set. An Executor repeatedly advances the statement offset by
// the page size until the offset reaches that total:
//
//	exec := pagination.NewExecutor(svc.GetWorkflowRequestsByStatement, pagination.DefaultConfig())
//	en, err := exec.Enumerate(ctx, builder)
//	if err != nil {
//		return err
//	}
//	if en.Total > 0 {
//		res, err := pagination.ApplyBulkAction(ctx, en, workflow.Approve("LGTM"), svc.PerformWorkflowRequestAction)
//		...
//	}
//
// The executor:
//   - Owns the statement window (callers pass offset 0 and never move it)
//   - Stops on an empty page or when offset >= total
//   - Applies DriftPolicy when the total changes between pages
//   - Refuses bulk actions on empty or missing enumerations
//   - Strips limit and offset from the statement sent with a bulk action
//
// FetchAll fetches pages after the first with a bounded worker pool.
//
// Errors are *Error values carrying an ErrorKind; collaborator errors
// remain reachable through errors.Is and errors.As.
package pagination
