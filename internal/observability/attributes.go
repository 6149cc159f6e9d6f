// Package observability provides metrics for the preview client and server.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrSuccess = "success"
	attrOp      = "op"
	attrFormat  = "book_format"
	attrOutcome = "outcome"
	attrState   = "state"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

func formatAttr(format string) attribute.KeyValue {
	return attribute.String(attrFormat, format)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func stateAttr(state string) attribute.KeyValue {
	if state == "" {
		state = "accepted"
	}
	return attribute.String(attrState, state)
}

// normalizePath replaces job ids with a placeholder to bound cardinality.
// /api/jobs/abc123/file -> /api/jobs/{id}/file
func normalizePath(path string) string {
	const marker = "/jobs/"
	i := strings.Index(path, marker)
	if i < 0 || len(path) == i+len(marker) {
		return path
	}
	rest := path[i+len(marker):]
	suffix := ""
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		suffix = rest[j:]
	}
	return path[:i+len(marker)] + "{id}" + suffix
}
