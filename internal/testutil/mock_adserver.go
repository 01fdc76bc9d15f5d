// Package testutil provides testing utilities for the ad server client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var windowRe = regexp.MustCompile(`LIMIT (\d+)(?: OFFSET (\d+))?`)

// WorkflowRequest is a workflow request held by the mock server.
type WorkflowRequest struct {
	ID         int64  `json:"id"`
	EntityID   int64  `json:"entityId"`
	EntityType string `json:"entityType"`
	Type       string `json:"type"`
	Status     string `json:"status"`
}

// Failure is a queued error response.
type Failure struct {
	StatusCode int
	Type       string
	Reason     string
}

type reportJob struct {
	polls int
}

// MockAdServer is a configurable in-memory ad server for testing.
type MockAdServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []WorkflowRequest
	reports  map[int64]*reportJob
	nextJob  int64
	failures []Failure
	calls    map[string]int

	// QuotaRemaining is returned in the X-Quota-Remaining header.
	QuotaRemaining int

	// ReportPolls is the number of status checks before a job completes.
	ReportPolls int

	// ReportFails makes every report job end in FAILED.
	ReportFails bool

	// Queries records every statement query received, in order.
	Queries []string

	// LastRequestHeader is the header of the most recent request.
	LastRequestHeader http.Header

	// LastActionComment is the comment of the most recent workflow action.
	LastActionComment string
}

// NewMockAdServer creates a new mock server.
func NewMockAdServer() *MockAdServer {
	m := &MockAdServer{
		reports:        make(map[int64]*reportJob),
		calls:          make(map[string]int),
		nextJob:        1000,
		QuotaRemaining: 100,
		ReportPolls:    1,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockAdServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAdServer) Close() {
	m.server.Close()
}

// AddApprovalRequests adds n pending approval requests for a proposal and
// returns their IDs.
func (m *MockAdServer) AddApprovalRequests(proposalID int64, n int) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id := int64(len(m.requests) + 1)
		m.requests = append(m.requests, WorkflowRequest{
			ID:         id,
			EntityID:   proposalID,
			EntityType: "PROPOSAL",
			Type:       "WORKFLOW_APPROVAL_REQUEST",
			Status:     "PENDING_APPROVAL",
		})
		ids = append(ids, id)
	}
	return ids
}

// Requests returns a copy of all workflow requests.
func (m *MockAdServer) Requests() []WorkflowRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WorkflowRequest(nil), m.requests...)
}

// FailNext queues failures returned by the next requests, one per request.
func (m *MockAdServer) FailNext(failures ...Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, failures...)
}

// Calls returns how many times method was called.
func (m *MockAdServer) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

type wireStatement struct {
	Query  string `json:"query"`
	Values []struct {
		Key   string `json:"key"`
		Value struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"value"`
	} `json:"values"`
}

func (m *MockAdServer) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || r.Method != http.MethodPost {
		writeFault(w, http.StatusNotFound, "NotFoundError", "unknown endpoint "+r.URL.Path)
		return
	}
	method := parts[2]

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[method]++
	m.LastRequestHeader = r.Header.Clone()

	w.Header().Set("X-Quota-Remaining", strconv.Itoa(m.QuotaRemaining))
	w.Header().Set("X-Quota-Reset", "60")
	w.Header().Set("Content-Type", "application/json")

	if len(m.failures) > 0 {
		f := m.failures[0]
		m.failures = m.failures[1:]
		writeFault(w, f.StatusCode, f.Type, f.Reason)
		return
	}

	var body struct {
		Statement wireStatement `json:"statement"`
		Action    struct {
			Type    string `json:"type"`
			Comment string `json:"comment"`
		} `json:"action"`
		ReportJobID  int64  `json:"reportJobId"`
		ExportFormat string `json:"exportFormat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, http.StatusBadRequest, "ParseError", err.Error())
		return
	}

	switch method {
	case "getWorkflowRequestsByStatement":
		m.Queries = append(m.Queries, body.Statement.Query)
		m.queryRequests(w, body.Statement)
	case "performWorkflowRequestAction":
		m.Queries = append(m.Queries, body.Statement.Query)
		m.LastActionComment = body.Action.Comment
		m.performAction(w, body.Action.Type, body.Statement)
	case "runReportJob":
		m.nextJob++
		m.reports[m.nextJob] = &reportJob{}
		writeRval(w, map[string]int64{"id": m.nextJob})
	case "getReportJobStatus":
		job, ok := m.reports[body.ReportJobID]
		if !ok {
			writeFault(w, http.StatusBadRequest, "ReportError", "unknown report job")
			return
		}
		job.polls++
		switch {
		case m.ReportFails:
			writeRval(w, "FAILED")
		case job.polls >= m.ReportPolls:
			writeRval(w, "COMPLETED")
		default:
			writeRval(w, "IN_PROGRESS")
		}
	case "getReportDownloadURL":
		writeRval(w, fmt.Sprintf("%s/download/%d?format=%s", m.server.URL, body.ReportJobID, body.ExportFormat))
	default:
		writeFault(w, http.StatusNotFound, "NotFoundError", "unknown method "+method)
	}
}

func (m *MockAdServer) queryRequests(w http.ResponseWriter, stmt wireStatement) {
	matched := m.match(stmt)

	limit, offset := len(matched), 0
	if win := windowRe.FindStringSubmatch(stmt.Query); win != nil {
		limit, _ = strconv.Atoi(win[1])
		if win[2] != "" {
			offset, _ = strconv.Atoi(win[2])
		}
	}

	page := struct {
		StartIndex         int               `json:"startIndex"`
		TotalResultSetSize int               `json:"totalResultSetSize"`
		Results            []WorkflowRequest `json:"results,omitempty"`
	}{StartIndex: offset, TotalResultSetSize: len(matched)}

	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		for _, i := range matched[offset:end] {
			page.Results = append(page.Results, m.requests[i])
		}
	}
	writeRval(w, page)
}

func (m *MockAdServer) performAction(w http.ResponseWriter, action string, stmt wireStatement) {
	if windowRe.MatchString(stmt.Query) {
		writeFault(w, http.StatusBadRequest, "StatementError", "action statement must not have LIMIT")
		return
	}

	target := map[string]string{
		"ApproveWorkflowApprovalRequests": "APPROVED",
		"RejectWorkflowApprovalRequests":  "REJECTED",
	}[action]
	if target == "" {
		writeFault(w, http.StatusBadRequest, "ValidationError", "unknown action "+action)
		return
	}

	changes := 0
	for _, i := range m.match(stmt) {
		if m.requests[i].Status == "PENDING_APPROVAL" {
			m.requests[i].Status = target
			changes++
		}
	}
	writeRval(w, map[string]int{"numChanges": changes})
}

// match returns the indices of requests matching every supported bind value.
func (m *MockAdServer) match(stmt wireStatement) []int {
	var out []int
	for i, req := range m.requests {
		ok := true
		for _, kv := range stmt.Values {
			var s string
			var n int64
			_ = json.Unmarshal(kv.Value.Value, &s)
			_ = json.Unmarshal(kv.Value.Value, &n)

			switch kv.Key {
			case "entityId":
				ok = ok && req.EntityID == n
			case "entityType":
				ok = ok && req.EntityType == s
			case "type":
				ok = ok && req.Type == s
			case "status":
				ok = ok && req.Status == s
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func writeRval(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"rval": v})
}

func writeFault(w http.ResponseWriter, status int, faultType, reason string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": faultType, "reason": reason},
	})
}
