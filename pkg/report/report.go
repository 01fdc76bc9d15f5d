// Package report runs ad server report jobs and waits for them to finish.
// Fetching and unpacking the report file itself is left to the caller;
// this package stops at the download URL.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/rs/zerolog"
)

// ServiceName is the remote service name.
const ServiceName = "ReportService"

// Remote methods.
const (
	MethodRunReportJob       = "runReportJob"
	MethodGetReportJobStatus = "getReportJobStatus"
	MethodGetDownloadURL     = "getReportDownloadURL"
)

// DefaultPollInterval is the wait between status checks.
const DefaultPollInterval = 30 * time.Second

var (
	// ErrReportFailed is returned when the server reports the job as FAILED.
	ErrReportFailed = errors.New("report job failed")

	// ErrInvalidQuery is returned by Query.Validate.
	ErrInvalidQuery = errors.New("invalid report query")

	// ErrUnknownStatus is returned when the server sends a status this
	// package does not know, including an empty one.
	ErrUnknownStatus = errors.New("unknown report job status")
)

// Dimension, Column and DateRangeType are ad server enum names.
type (
	Dimension     string
	Column        string
	DateRangeType string
)

const (
	DimensionLineItemID   Dimension = "LINE_ITEM_ID"
	DimensionLineItemName Dimension = "LINE_ITEM_NAME"

	ColumnReachFrequency      Column = "REACH_FREQUENCY"
	ColumnReachAverageRevenue Column = "REACH_AVERAGE_REVENUE"
	ColumnReach               Column = "REACH"

	DateRangeReachLifetime DateRangeType = "REACH_LIFETIME"
	DateRangeLastWeek      DateRangeType = "LAST_WEEK"
	DateRangeCustom        DateRangeType = "CUSTOM_DATE"
)

// Status of a report job.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// ExportFormat of the generated report file.
type ExportFormat string

const (
	FormatCSVDump ExportFormat = "CSV_DUMP"
	FormatTSV     ExportFormat = "TSV"
	FormatXML     ExportFormat = "XML"
	FormatXLSX    ExportFormat = "XLSX"
)

// Query describes the report to generate.
type Query struct {
	Dimensions    []Dimension   `json:"dimensions"`
	Columns       []Column      `json:"columns"`
	DateRangeType DateRangeType `json:"dateRangeType"`
	// StartDate and EndDate are "YYYY-MM-DD" and only used with DateRangeCustom.
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// ReachQuery is the lifetime reach report per line item.
func ReachQuery() Query {
	return Query{
		Dimensions:    []Dimension{DimensionLineItemID, DimensionLineItemName},
		Columns:       []Column{ColumnReachFrequency, ColumnReachAverageRevenue, ColumnReach},
		DateRangeType: DateRangeReachLifetime,
	}
}

// Validate checks the query before it is sent.
func (q Query) Validate() error {
	if len(q.Dimensions) == 0 {
		return fmt.Errorf("%w: at least one dimension is required", ErrInvalidQuery)
	}
	if len(q.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidQuery)
	}
	if q.DateRangeType == "" {
		return fmt.Errorf("%w: date range type is required", ErrInvalidQuery)
	}
	if q.DateRangeType == DateRangeCustom && (q.StartDate == "" || q.EndDate == "") {
		return fmt.Errorf("%w: custom date range needs start and end date", ErrInvalidQuery)
	}
	return nil
}

// Job is a report job.
type Job struct {
	ID    int64 `json:"id"`
	Query Query `json:"reportQuery"`
}

// Caller is the part of *client.Client the service needs.
type Caller interface {
	Call(ctx context.Context, service, method string, req any, out any) error
}

// Service performs ReportService calls.
type Service struct {
	caller Caller
	logger zerolog.Logger

	// PollInterval is the wait between status checks in WaitForReportReady.
	PollInterval time.Duration
}

// NewService creates a report service.
func NewService(caller Caller) *Service {
	return &Service{
		caller:       caller,
		logger:       logging.NewLogger(logging.ComponentReport),
		PollInterval: DefaultPollInterval,
	}
}

// RunReportJob starts a report job for query.
func (s *Service) RunReportJob(ctx context.Context, query Query) (Job, error) {
	if err := query.Validate(); err != nil {
		return Job{}, err
	}

	req := struct {
		ReportJob Job `json:"reportJob"`
	}{Job{Query: query}}

	var job Job
	if err := s.caller.Call(ctx, ServiceName, MethodRunReportJob, req, &job); err != nil {
		return Job{}, fmt.Errorf("run report job: %w", err)
	}

	s.logger.Info().Int64("report_job_id", job.ID).Msg("Report job started")
	return job, nil
}

// GetReportJobStatus returns the status of a report job.
func (s *Service) GetReportJobStatus(ctx context.Context, jobID int64) (Status, error) {
	req := struct {
		ReportJobID int64 `json:"reportJobId"`
	}{jobID}

	var status Status
	if err := s.caller.Call(ctx, ServiceName, MethodGetReportJobStatus, req, &status); err != nil {
		return "", fmt.Errorf("get report job %d status: %w", jobID, err)
	}
	return status, nil
}

// WaitForReportReady polls while the job is IN_PROGRESS. It returns nil on
// COMPLETED and an error on FAILED, on any other status, or when ctx ends.
func (s *Service) WaitForReportReady(ctx context.Context, jobID int64) error {
	for polls := 1; ; polls++ {
		status, err := s.GetReportJobStatus(ctx, jobID)
		if err != nil {
			return err
		}

		switch status {
		case StatusCompleted:
			s.logger.Info().Int64("report_job_id", jobID).Int("polls", polls).Msg("Report ready")
			return nil
		case StatusFailed:
			return fmt.Errorf("%w: job %d", ErrReportFailed, jobID)
		case StatusInProgress:
		default:
			s.logger.Warn().Int64("report_job_id", jobID).Str("status", string(status)).Msg("Unknown report status")
			return fmt.Errorf("%w %q: job %d", ErrUnknownStatus, status, jobID)
		}

		s.logger.Debug().
			Int64("report_job_id", jobID).
			Str("status", string(status)).
			Dur("poll_interval", s.PollInterval).
			Msg("Report not ready")

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for report job %d: %w", jobID, ctx.Err())
		case <-time.After(s.PollInterval):
		}
	}
}

// GetReportDownloadURL returns the URL of the finished report file.
func (s *Service) GetReportDownloadURL(ctx context.Context, jobID int64, format ExportFormat) (string, error) {
	req := struct {
		ReportJobID  int64        `json:"reportJobId"`
		ExportFormat ExportFormat `json:"exportFormat"`
	}{jobID, format}

	var url string
	if err := s.caller.Call(ctx, ServiceName, MethodGetDownloadURL, req, &url); err != nil {
		return "", fmt.Errorf("get report job %d download url: %w", jobID, err)
	}
	return url, nil
}

// Run starts a job, waits for it and returns the job with its download URL.
func (s *Service) Run(ctx context.Context, query Query, format ExportFormat) (Job, string, error) {
	job, err := s.RunReportJob(ctx, query)
	if err != nil {
		return Job{}, "", err
	}
	if err := s.WaitForReportReady(ctx, job.ID); err != nil {
		return job, "", err
	}
	url, err := s.GetReportDownloadURL(ctx, job.ID, format)
	if err != nil {
		return job, "", err
	}
	return job, url, nil
}
