package models

import "time"

// MetricType selects which field of a MetricSample a rule evaluates.
type MetricType string

const (
	MetricCPUPercent    MetricType = "cpu_percent"
	MetricMemoryPercent MetricType = "memory_percent"
	MetricNetworkIn     MetricType = "network_in"
	MetricNetworkOut    MetricType = "network_out"
)

// AlertOperator is the comparison applied against a rule's threshold.
type AlertOperator string

const (
	OperatorGreaterThan AlertOperator = "gt"
	OperatorLessThan    AlertOperator = "lt"
)

// MetricSample is one observation for one VM. Append-only time series.
type MetricSample struct {
	VMID       string    `json:"vm_id"`
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"memory_percent"`
	NetInKBps  float64   `json:"network_in_kbps"`
	NetOutKBps float64   `json:"network_out_kbps"`
}

// ValueFor returns the sample field selected by the metric type.
func (s *MetricSample) ValueFor(metric MetricType) float64 {
	switch metric {
	case MetricMemoryPercent:
		return s.MemPercent
	case MetricNetworkIn:
		return s.NetInKBps
	case MetricNetworkOut:
		return s.NetOutKBps
	default:
		return s.CPUPercent
	}
}

// AlertRule is a threshold rule evaluated over a sliding window. An empty
// VMID makes the rule global: it applies to every currently running VM.
// MinSamples is the coverage floor below which a window is indeterminate.
type AlertRule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	MetricType  MetricType    `json:"metric_type"`
	Operator    AlertOperator `json:"operator"`
	Threshold   float64       `json:"threshold"`
	DurationMin int           `json:"duration_minutes"`
	MinSamples  int           `json:"min_samples"`
	Enabled     bool          `json:"enabled"`
	VMID        string        `json:"vm_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Violates reports whether a single value breaches the rule's threshold.
func (r *AlertRule) Violates(value float64) bool {
	if r.Operator == OperatorLessThan {
		return value < r.Threshold
	}
	return value > r.Threshold
}

// AlertInstanceStatus is the lifecycle state of a fired alert.
type AlertInstanceStatus string

const (
	AlertActive   AlertInstanceStatus = "active"
	AlertResolved AlertInstanceStatus = "resolved"
)

// AlertInstance is one firing of a rule against a VM. At most one active
// instance exists per (rule, vm) pair.
type AlertInstance struct {
	ID         string              `json:"id"`
	RuleID     string              `json:"rule_id"`
	VMID       string              `json:"vm_id"`
	Value      float64             `json:"value"`
	Message    string              `json:"message"`
	Status     AlertInstanceStatus `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`
}
