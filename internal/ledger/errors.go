package ledger

// ConfigurationError reports a change-history table whose state
// contradicts the run's flags: absent without --create-change-history-table
// or --initial-deployment, or present when --initial-deployment was
// declared. Always fatal, raised before any script executes.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }
