package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountRegistered = "account.registered"

	// Credex actions
	ActionCredexIssued    = "credex.issued"
	ActionCredexAccepted  = "credex.accepted"
	ActionCredexDeclined  = "credex.declined"
	ActionCredexCancelled = "credex.cancelled"
	ActionCredexCleared   = "credex.cleared"
	ActionCredexDefaulted = "credex.defaulted"

	// Clearing actions
	ActionLoopCleared = "loop.cleared"

	// Rebasing actions
	ActionRebaseStarted   = "rebase.started"
	ActionRebaseCompleted = "rebase.completed"

	// Queue actions
	ActionQueueDrained = "queue.drained"

	// Authorization actions
	ActionAuthorizationDenied = "authorization.denied"
)

// Resource constants for audit events.
const (
	ResourceAccount = "account"
	ResourceCredex  = "credex"
	ResourceLoop    = "loop"
	ResourceDayNode = "day_node"
	ResourceQueue   = "queue"
)

// Category constants for audit events.
const (
	CategoryLedger    = "ledger"
	CategoryClearing  = "clearing"
	CategoryRebasing  = "rebasing"
	CategoryAccess    = "access"
	CategoryOperation = "operation"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
