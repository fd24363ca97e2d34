package domain

import "time"

// MonitorState tracks the lifecycle of one monitored contract pair.
type MonitorState string

const (
	MonitorIdle     MonitorState = "idle"
	MonitorWatching MonitorState = "watching"
	MonitorStopped  MonitorState = "stopped"
)

// Snapshot is a read-only view of one pair's decision state, refreshed once
// per decision step and consumed by the dashboard and notifiers.
type Snapshot struct {
	ContractID   string        `json:"contract_id"`
	State        MonitorState  `json:"state"`
	Positions    PairPosition  `json:"positions"`
	PairCost     float64       `json:"pair_cost"`
	IsProfitable bool          `json:"is_profitable"`
	Imbalance    float64       `json:"imbalance"`
	WindingDown  bool          `json:"winding_down"`
	LastDecision string        `json:"last_decision"`
	Trades       []TradeRecord `json:"trades,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}
