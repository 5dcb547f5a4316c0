package enums

// UserRole is carried on access tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = newSet("user role", UserRoleCustomer, UserRoleAdmin)

func (r UserRole) IsValid() bool { return userRoles.has(r) }

// SecurityEventType classifies guard findings written to security_events.
type SecurityEventType string

const (
	SecurityEventRateLimitExceeded   SecurityEventType = "rate_limit_exceeded"
	SecurityEventCostLimitExceeded   SecurityEventType = "cost_limit_exceeded"
	SecurityEventCostLimitWarning    SecurityEventType = "cost_limit_warning"
	SecurityEventDuplicateOrder      SecurityEventType = "duplicate_order"
	SecurityEventSuspiciousActivity  SecurityEventType = "suspicious_activity"
	SecurityEventRetryAbuse          SecurityEventType = "retry_abuse_detected"
	SecurityEventUnusualBehavior     SecurityEventType = "unusual_order_behavior"
	SecurityEventSubmissionFailed    SecurityEventType = "order_submission_failed"
	SecurityEventGuardCheckFailed    SecurityEventType = "guard_check_failed"
	SecurityEventDuplicateSubmission SecurityEventType = "duplicate_submission_detected"
)

var securityEventTypes = newSet("security event type",
	SecurityEventRateLimitExceeded, SecurityEventCostLimitExceeded, SecurityEventCostLimitWarning,
	SecurityEventDuplicateOrder, SecurityEventSuspiciousActivity, SecurityEventRetryAbuse,
	SecurityEventUnusualBehavior, SecurityEventSubmissionFailed, SecurityEventGuardCheckFailed,
	SecurityEventDuplicateSubmission,
)

func (t SecurityEventType) IsValid() bool { return securityEventTypes.has(t) }

// Severity grades a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severities = newSet("severity", SeverityInfo, SeverityWarning, SeverityCritical)

func (s Severity) IsValid() bool { return severities.has(s) }
