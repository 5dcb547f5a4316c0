package errors

import "net/http"

// Code is the stable machine-readable identifier clients branch on.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeOrderBlocked  Code = "ORDER_BLOCKED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeDataIntegrity Code = "DATA_INTEGRITY_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Policy is how a code is rendered to API clients.
type Policy struct {
	Status int
	// Fallback is sent when the error's own message is internal or empty.
	Fallback string
	// Public lets the error's own message through.
	Public bool
	// Details lets structured details through.
	Details   bool
	Retryable bool
}

// 5xx codes keep their messages internal; they often carry driver text.
var policies = map[Code]Policy{
	CodeValidation:    {Status: http.StatusBadRequest, Fallback: "validation failed", Public: true, Details: true},
	CodeUnauthorized:  {Status: http.StatusUnauthorized, Fallback: "authentication required", Public: true},
	CodeForbidden:     {Status: http.StatusForbidden, Fallback: "access denied", Public: true},
	CodeNotFound:      {Status: http.StatusNotFound, Fallback: "resource not found", Public: true},
	CodeConflict:      {Status: http.StatusConflict, Fallback: "conflict detected", Public: true},
	CodeStateConflict: {Status: http.StatusUnprocessableEntity, Fallback: "state transition disallowed", Public: true, Details: true},
	CodeOrderBlocked:  {Status: http.StatusUnprocessableEntity, Fallback: "order blocked by fulfillment guard", Public: true, Details: true},
	CodeRateLimit:     {Status: http.StatusTooManyRequests, Fallback: "rate limit exceeded", Public: true},
	CodeDataIntegrity: {Status: http.StatusInternalServerError, Fallback: "order data integrity failure"},
	CodeInternal:      {Status: http.StatusInternalServerError, Fallback: "internal server error", Retryable: true},
	CodeDependency:    {Status: http.StatusServiceUnavailable, Fallback: "dependency unavailable", Details: true, Retryable: true},
}

// Policy returns the rendering rules for c. Unknown codes render as internal.
func (c Code) Policy() Policy {
	if p, ok := policies[c]; ok {
		return p
	}
	return policies[CodeInternal]
}
