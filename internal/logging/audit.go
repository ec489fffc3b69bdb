package logging

// AuditEvent represents an identity change worth keeping a trail of
type AuditEvent struct {
	Operation string // e.g., "login_cyber", "disconnect_deschool", "wallet_connected"
	Actor     string // Wallet address that performed the action
	Target    string // What was affected (credential slot, wallet type)
	Result    string // "success" or "failure"
	Details   string // Additional context
}

// Audit logs an identity change with structured fields.
// Audit events are logged at Info level with a special "audit" attribute
// to distinguish them from regular application logs.
func Audit(event AuditEvent) {
	Logger().Info("audit",
		"audit", true,
		"operation", event.Operation,
		"actor", event.Actor,
		"target", event.Target,
		"result", event.Result,
		"details", event.Details,
	)
}
