package model

import "time"

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertEvent is a fired alert, produced by the alerting engine and consumed
// by delivery channels. Events are deduplicated by (RuleID, Module) within
// the configured cooldown window before they reach any channel.
type AlertEvent struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	MetricName  string  `json:"metric_name"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`

	// Module is set when the rule matched a specific module's sub-report;
	// empty for global rules.
	Module string `json:"module,omitempty"`

	FiredAt time.Time `json:"fired_at"`
}

// DedupKey identifies the cooldown bucket for this event.
func (e AlertEvent) DedupKey() string {
	if e.Module == "" {
		return e.RuleID
	}
	return e.RuleID + ":" + e.Module
}
