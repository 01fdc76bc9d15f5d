package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/adserver-client/internal/testutil"
	"github.com/Sternrassler/adserver-client/pkg/client"
	"github.com/Sternrassler/adserver-client/pkg/pagination"
	"github.com/Sternrassler/adserver-client/pkg/workflow"
)

func newService(t *testing.T, mock *testutil.MockAdServer, pageSize uint32) *workflow.Service {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL(), "1234", "ApproveRequests/test")
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	pcfg := pagination.DefaultConfig()
	pcfg.PageSize = pageSize
	return workflow.NewService(c).WithPagination(pcfg)
}

func TestApproveForProposal(t *testing.T) {
	mock := testutil.NewMockAdServer()
	defer mock.Close()
	ids := mock.AddApprovalRequests(42, 25)
	mock.AddApprovalRequests(7, 4)

	svc := newService(t, mock, 10)
	var out bytes.Buffer

	summary, err := svc.ApproveForProposal(context.Background(), 42, "approved in bulk", &out)
	if err != nil {
		t.Fatalf("ApproveForProposal() error = %v", err)
	}

	if summary.Total != 25 || len(summary.Requests) != 25 {
		t.Errorf("Total = %d, Requests = %d, want 25/25", summary.Total, len(summary.Requests))
	}
	if summary.Result.Outcome != pagination.Changed || summary.Result.NumChanges != 25 {
		t.Errorf("Result = %+v, want Changed with 25 changes", summary.Result)
	}
	if n := mock.Calls(workflow.MethodGetByStatement); n != 3 {
		t.Errorf("page fetches = %d, want 3", n)
	}
	if n := mock.Calls(workflow.MethodPerformAction); n != 1 {
		t.Errorf("action calls = %d, want 1", n)
	}

	last := mock.Queries[len(mock.Queries)-1]
	if strings.Contains(last, "LIMIT") || strings.Contains(last, "OFFSET") {
		t.Errorf("action query %q still has a window", last)
	}

	text := out.String()
	for _, want := range []string{
		"0) Workflow approval request with ID 1, for 'PROPOSAL', with ID 42 will be approved.",
		"24) Workflow approval request with ID 25, for 'PROPOSAL', with ID 42 will be approved.",
		"Number of workflow approval requests to be approved: 25",
		"Number of workflow approval requests approved: 25",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}

	for _, req := range mock.Requests() {
		approved := req.Status == string(workflow.StatusApproved)
		if (req.EntityID == 42) != approved {
			t.Errorf("request %d of entity %d has status %s", req.ID, req.EntityID, req.Status)
		}
	}
	if ids[0] != summary.Requests[0].ID {
		t.Errorf("first request = %d, want %d", summary.Requests[0].ID, ids[0])
	}
}

func TestApproveForProposal_SecondRunNoChanges(t *testing.T) {
	mock := testutil.NewMockAdServer()
	defer mock.Close()
	mock.AddApprovalRequests(42, 3)

	svc := newService(t, mock, 10)
	ctx := context.Background()

	if _, err := svc.ApproveForProposal(ctx, 42, "", &bytes.Buffer{}); err != nil {
		t.Fatalf("first ApproveForProposal() error = %v", err)
	}

	var out bytes.Buffer
	summary, err := svc.ApproveForProposal(ctx, 42, "", &out)
	if err != nil {
		t.Fatalf("second ApproveForProposal() error = %v", err)
	}
	if summary.Result.Outcome != pagination.NoChanges {
		t.Errorf("Outcome = %s, want %s", summary.Result.Outcome, pagination.NoChanges)
	}
	if !strings.Contains(out.String(), "No workflow approval requests were approved.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestApproveForProposal_NothingToApprove(t *testing.T) {
	mock := testutil.NewMockAdServer()
	defer mock.Close()
	mock.AddApprovalRequests(7, 2)

	svc := newService(t, mock, 10)
	var out bytes.Buffer

	summary, err := svc.ApproveForProposal(context.Background(), 42, "", &out)
	if err != nil {
		t.Fatalf("ApproveForProposal() error = %v", err)
	}
	if summary.Total != 0 || summary.Result.Outcome != pagination.NotAttempted {
		t.Errorf("summary = %+v, want empty and NotAttempted", summary)
	}
	if n := mock.Calls(workflow.MethodGetByStatement); n != 1 {
		t.Errorf("page fetches = %d, want 1", n)
	}
	if n := mock.Calls(workflow.MethodPerformAction); n != 0 {
		t.Errorf("action calls = %d, want 0", n)
	}
	if !strings.Contains(out.String(), "Number of workflow approval requests to be approved: 0") {
		t.Errorf("output = %q", out.String())
	}
}

func TestApproveForProposal_FetchError(t *testing.T) {
	mock := testutil.NewMockAdServer()
	defer mock.Close()
	mock.AddApprovalRequests(42, 25)
	mock.FailNext(testutil.Failure{StatusCode: http.StatusUnauthorized, Type: "AuthenticationError", Reason: "NOT_WHITELISTED_FOR_API_ACCESS"})

	svc := newService(t, mock, 10)

	_, err := svc.ApproveForProposal(context.Background(), 42, "", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error")
	}
	if pagination.KindOf(err) != pagination.TransportFault {
		t.Errorf("KindOf() = %q, want %q", pagination.KindOf(err), pagination.TransportFault)
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != client.ErrorClassAuth {
		t.Errorf("error = %v, want auth APIError", err)
	}
	if n := mock.Calls(workflow.MethodPerformAction); n != 0 {
		t.Errorf("action calls = %d, want 0", n)
	}
}

func TestApproveForProposal_ActionError(t *testing.T) {
	mock := testutil.NewMockAdServer()
	defer mock.Close()
	mock.AddApprovalRequests(42, 5)

	svc := newService(t, mock, 10)
	ctx := context.Background()

	en, err := svc.Executor().Enumerate(ctx, workflow.ProposalApprovalStatement(42))
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}

	mock.FailNext(testutil.Failure{StatusCode: http.StatusBadRequest, Type: "WorkflowActionError", Reason: "NOT_APPLICABLE"})
	_, err = pagination.ApplyBulkAction(ctx, en, workflow.Approve(""), svc.PerformWorkflowRequestAction)
	if pagination.KindOf(err) != pagination.TransportFault {
		t.Errorf("KindOf() = %q, want %q", pagination.KindOf(err), pagination.TransportFault)
	}
	for _, req := range mock.Requests() {
		if req.Status != string(workflow.StatusPendingApproval) {
			t.Errorf("request %d status = %s, want unchanged", req.ID, req.Status)
		}
	}
}

func TestProposalApprovalStatement(t *testing.T) {
	stmt, err := workflow.ProposalApprovalStatement(42).ToStatement()
	if err != nil {
		t.Fatalf("ToStatement() error = %v", err)
	}

	want := "WHERE entityId = :entityId and entityType = :entityType and type = :type ORDER BY id ASC"
	if stmt.Query != want {
		t.Errorf("Query = %q, want %q", stmt.Query, want)
	}
	if len(stmt.Values) != 3 {
		t.Errorf("Values = %d, want 3", len(stmt.Values))
	}
}
