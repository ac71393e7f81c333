package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldOwnerID    = "owner_id"
	FieldAccountID  = "account_id"
	FieldEntity     = "entity"
	FieldEntityID   = "entity_id"
	FieldDeltaCents = "delta_cents"
	FieldUsername   = "username"
)

// Standard component names.
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
	ComponentCLI    = "cli"
)
