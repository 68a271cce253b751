package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldExpenseID     = "expense_id"
	FieldVentureID     = "venture_id"
	FieldLedgerID      = "ledger_id"
	FieldActor         = "actor"
	FieldAmountCents   = "amount_cents"
	FieldPaymentState  = "payment_state"
	FieldApprovalState = "approval_state"
	FieldWarning       = "warning"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLifecycle = "lifecycle"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentLedger    = "ledger"
	ComponentAudit     = "audit"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpReview   = "review"
	OpSync     = "sync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
