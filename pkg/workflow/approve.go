package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/adserver-client/pkg/pagination"
	"github.com/Sternrassler/adserver-client/pkg/statement"
)

// ApprovalSummary reports what ApproveForProposal found and did.
type ApprovalSummary struct {
	ProposalID int64
	Requests   []Request
	Total      uint32
	Result     pagination.BulkResult
}

// ProposalApprovalStatement selects the approval requests of a proposal.
func ProposalApprovalStatement(proposalID int64) *statement.Builder {
	return statement.NewBuilder().
		Where("WHERE entityId = :entityId and entityType = :entityType and type = :type").
		OrderBy("id ASC").
		WithBindVariable("entityId", statement.Integer(proposalID)).
		WithBindVariable("entityType", statement.Enum(string(EntityProposal))).
		WithBindVariable("type", statement.Enum(string(TypeApprovalRequest)))
}

// ApproveForProposal lists every approval request of a proposal, writing one
// line per request to out, then approves them all with comment. When nothing
// matches, no action is sent and Result.Outcome is NotAttempted.
func (s *Service) ApproveForProposal(ctx context.Context, proposalID int64, comment string, out io.Writer) (*ApprovalSummary, error) {
	exec := s.Executor().OnRecord(func(i uint32, r Request) {
		fmt.Fprintf(out, "%d) Workflow approval request with ID %d, for '%s', with ID %d will be approved.\n",
			i, r.ID, r.EntityType, r.EntityID)
	})

	en, err := exec.Enumerate(ctx, ProposalApprovalStatement(proposalID))
	if err != nil {
		return nil, fmt.Errorf("list approval requests for proposal %d: %w", proposalID, err)
	}

	summary := &ApprovalSummary{
		ProposalID: proposalID,
		Requests:   en.Records,
		Total:      en.Total,
		Result:     pagination.BulkResult{Outcome: pagination.NotAttempted},
	}

	fmt.Fprintf(out, "Number of workflow approval requests to be approved: %d\n", en.Total)

	if en.Total == 0 {
		return summary, nil
	}

	result, err := pagination.ApplyBulkAction(ctx, en, Approve(comment), s.PerformWorkflowRequestAction)
	if err != nil {
		return summary, fmt.Errorf("approve requests for proposal %d: %w", proposalID, err)
	}
	summary.Result = result

	if result.Outcome == pagination.Changed {
		fmt.Fprintf(out, "Number of workflow approval requests approved: %d\n", result.NumChanges)
	} else {
		fmt.Fprintf(out, "No workflow approval requests were approved.\n")
	}

	return summary, nil
}
