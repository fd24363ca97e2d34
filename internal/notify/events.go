package notify

// Event types emitted by the decision loop. The configured event filter
// matches against these strings.
const (
	EventProfitLocked   = "profit_locked"
	EventRiskDenied     = "risk_denied"
	EventOrderFilled    = "order_filled"
	EventMonitorStopped = "monitor_stopped"
)
