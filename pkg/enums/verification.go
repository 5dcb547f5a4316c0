package enums

// VerificationStatus is the outcome recorded on a verification audit entry.
type VerificationStatus string

const (
	VerificationStatusAttempting VerificationStatus = "attempting"
	VerificationStatusSuccess    VerificationStatus = "success"
	VerificationStatusFailed     VerificationStatus = "failed"
)

var verificationStatuses = newSet("verification status",
	VerificationStatusAttempting, VerificationStatusSuccess, VerificationStatusFailed,
)

func (s VerificationStatus) IsValid() bool { return verificationStatuses.has(s) }

// VerificationMethod names the key that reconciled a checkout session to an order.
type VerificationMethod string

const (
	VerificationMethodSessionID       VerificationMethod = "session_id"
	VerificationMethodPaymentIntentID VerificationMethod = "payment_intent_id"
	VerificationMethodNone            VerificationMethod = "none"
)

var verificationMethods = newSet("verification method",
	VerificationMethodSessionID, VerificationMethodPaymentIntentID, VerificationMethodNone,
)

func (m VerificationMethod) IsValid() bool { return verificationMethods.has(m) }
