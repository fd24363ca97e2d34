package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrOrderExpired     = errors.New("order expired")
	ErrOrderRejected    = errors.New("order rejected")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrInvalidFill      = errors.New("invalid fill parameters")
	ErrNotFound         = errors.New("not found")
	ErrMonitorRunning   = errors.New("monitor already running")
	ErrMonitorStopped   = errors.New("monitor stopped")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
)

// DenyReason labels why the risk gate refused a proposed order. The reason
// is always surfaced, never silently dropped.
type DenyReason string

const (
	DenyNoArbSpace     DenyReason = "NO_ARB_SPACE"
	DenyExposureLimit  DenyReason = "EXPOSURE_LIMIT"
	DenyDeadSide       DenyReason = "DEAD_SIDE"
	DenyCapitalLimit   DenyReason = "CAPITAL_LIMIT"
	DenySettlementLock DenyReason = "SETTLEMENT_LOCK"
	DenyOversizeSell   DenyReason = "OVERSIZE_SELL"
)

// RiskDeniedError is returned when the risk gate blocks an order. It is an
// expected control-flow outcome, the system doing its job, not a fault.
type RiskDeniedError struct {
	Reason DenyReason
	Detail string
}

func (e *RiskDeniedError) Error() string {
	return fmt.Sprintf("risk denied: %s: %s", e.Reason, e.Detail)
}

// AsRiskDenied unwraps err into a RiskDeniedError when it is one.
func AsRiskDenied(err error) (*RiskDeniedError, bool) {
	var rd *RiskDeniedError
	if errors.As(err, &rd) {
		return rd, true
	}
	return nil, false
}
