package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperatingMode determines how many hours per day a system is metered for.
type OperatingMode string

const (
	ModeContinuous    OperatingMode = "continuous"     // 24h/day
	ModeBusinessHours OperatingMode = "business_hours" // 8h/day
)

// ResourceTotals is a cpu/memory/storage triple summed over a system's VMs.
type ResourceTotals struct {
	CPUCores  int `json:"cpu_cores"`
	MemoryGB  int `json:"memory_gb"`
	StorageGB int `json:"storage_gb"`
}

// InformationSystem is the owning entity for a group of VM records. Totals
// are a cached rollup maintained by the aggregator job; Discount is the
// tenant's contract discount multiplier, maintained by the admin layer.
type InformationSystem struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	TenantID         string          `json:"tenant_id"`
	BillingAccountID string          `json:"billing_account_id"`
	OperatingMode    OperatingMode   `json:"operating_mode"`
	Totals           ResourceTotals  `json:"totals"`
	Discount         decimal.Decimal `json:"discount"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RunningHoursPerDay returns the metered hours for one calendar day.
func (s *InformationSystem) RunningHoursPerDay() int {
	if s.OperatingMode == ModeBusinessHours {
		return 8
	}
	return 24
}
