// Package workflow wraps the ad server WorkflowRequestService.
package workflow

import (
	"context"

	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/Sternrassler/adserver-client/pkg/pagination"
	"github.com/Sternrassler/adserver-client/pkg/statement"
	"github.com/rs/zerolog"
)

// ServiceName is the remote service name.
const ServiceName = "WorkflowRequestService"

// Remote methods.
const (
	MethodGetByStatement = "getWorkflowRequestsByStatement"
	MethodPerformAction  = "performWorkflowRequestAction"
)

// EntityType is the kind of entity a workflow request belongs to.
type EntityType string

const (
	EntityProposal         EntityType = "PROPOSAL"
	EntityProposalLineItem EntityType = "PROPOSAL_LINE_ITEM"
)

// RequestType distinguishes approval requests from external condition requests.
type RequestType string

const (
	TypeApprovalRequest          RequestType = "WORKFLOW_APPROVAL_REQUEST"
	TypeExternalConditionRequest RequestType = "WORKFLOW_EXTERNAL_CONDITION_REQUEST"
)

// Status of a workflow approval request.
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

// Request is a workflow request as returned by the ad server.
type Request struct {
	ID               int64       `json:"id"`
	EntityID         int64       `json:"entityId"`
	EntityType       EntityType  `json:"entityType"`
	Type             RequestType `json:"type"`
	Status           Status      `json:"status,omitempty"`
	WorkflowRuleName string      `json:"workflowRuleName,omitempty"`
}

// ActionKind names a workflow request action.
type ActionKind string

const (
	KindApprove ActionKind = "ApproveWorkflowApprovalRequests"
	KindReject  ActionKind = "RejectWorkflowApprovalRequests"
)

// Action is a bulk action over workflow approval requests.
type Action struct {
	Kind    ActionKind `json:"type"`
	Comment string     `json:"comment,omitempty"`
}

// Approve returns an approval action with an optional comment.
func Approve(comment string) Action {
	return Action{Kind: KindApprove, Comment: comment}
}

// Reject returns a rejection action with an optional comment.
func Reject(comment string) Action {
	return Action{Kind: KindReject, Comment: comment}
}

// Caller is the part of *client.Client the service needs.
type Caller interface {
	Query(ctx context.Context, service, method string, stmt statement.Statement, out any) error
	Call(ctx context.Context, service, method string, req any, out any) error
	Invalidate(ctx context.Context, service string) error
}

// Service performs WorkflowRequestService calls.
type Service struct {
	caller     Caller
	pagination pagination.Config
	logger     zerolog.Logger
}

// NewService creates a workflow request service.
func NewService(caller Caller) *Service {
	return &Service{
		caller:     caller,
		pagination: pagination.DefaultConfig(),
		logger:     logging.NewLogger(logging.ComponentWorkflow),
	}
}

// WithPagination overrides the pagination configuration.
func (s *Service) WithPagination(cfg pagination.Config) *Service {
	s.pagination = cfg
	return s
}

// GetWorkflowRequestsByStatement fetches one page of workflow requests.
func (s *Service) GetWorkflowRequestsByStatement(ctx context.Context, stmt statement.Statement) (pagination.Page[Request], error) {
	var page pagination.Page[Request]
	if err := s.caller.Query(ctx, ServiceName, MethodGetByStatement, stmt, &page); err != nil {
		return pagination.Page[Request]{}, err
	}
	return page, nil
}

// PerformWorkflowRequestAction applies action to every request matching stmt.
func (s *Service) PerformWorkflowRequestAction(ctx context.Context, action Action, stmt statement.Statement) (pagination.ActionResult, error) {
	req := struct {
		Action    Action              `json:"action"`
		Statement statement.Statement `json:"statement"`
	}{action, stmt}

	var result pagination.ActionResult
	if err := s.caller.Call(ctx, ServiceName, MethodPerformAction, req, &result); err != nil {
		return pagination.ActionResult{}, err
	}

	if err := s.caller.Invalidate(ctx, ServiceName); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to invalidate cached workflow pages")
	}

	s.logger.Info().
		Str("action", string(action.Kind)).
		Uint32("num_changes", result.NumChanges).
		Int("failures", len(result.Failures)).
		Msg("Workflow request action performed")

	return result, nil
}

// Executor returns a pagination executor over workflow requests.
func (s *Service) Executor() *pagination.Executor[Request] {
	return pagination.NewExecutor(s.GetWorkflowRequestsByStatement, s.pagination).WithLogger(s.logger)
}
