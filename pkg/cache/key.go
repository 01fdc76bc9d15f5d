package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/adserver-client/pkg/statement"
)

// Key identifies one cached result page.
type Key struct {
	// NetworkCode is the ad server network the request ran against.
	NetworkCode string

	// Service is the remote service, e.g. "WorkflowRequestService".
	Service string

	// Method is the remote method, e.g. "getWorkflowRequestsByStatement".
	Method string

	// Statement is the wire form sent with the request.
	Statement statement.Statement

	// Generation is the service generation at request time.
	Generation int64
}

// String generates a deterministic cache key string.
// Format: adserver:page:network:service:method:g<generation>:<statement hash>
//
// Example:
//
//	adserver:page:1234:WorkflowRequestService:getWorkflowRequestsByStatement:g0:9f86d0...
func (k Key) String() string {
	parts := []string{
		"adserver", "page",
		k.NetworkCode,
		k.Service,
		k.Method,
		fmt.Sprintf("g%d", k.Generation),
		statementHash(k.Statement),
	}
	return strings.Join(parts, ":")
}

// statementHash hashes the query and bind values. ToStatement sorts values
// by name, so equal statements hash equally.
func statementHash(stmt statement.Statement) string {
	h := sha256.New()
	h.Write([]byte(stmt.Query))
	for _, kv := range stmt.Values {
		h.Write([]byte{0})
		h.Write([]byte(kv.Key))
		h.Write([]byte{0})
		data, err := json.Marshal(kv.Value)
		if err != nil {
			data = []byte(kv.Value.String())
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func generationKey(networkCode, service string) string {
	return strings.Join([]string{"adserver", "gen", networkCode, service}, ":")
}
