package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBillingRecord is one metered day for one system. Unique per
// (system, billing date) and immutable once created; the discount multiplier
// is captured from the tenant at creation time and never re-derived.
type DailyBillingRecord struct {
	ID          string          `json:"id"`
	SystemID    string          `json:"system_id"`
	BillingDate time.Time       `json:"billing_date"` // midnight UTC
	CPUCores    int             `json:"cpu_cores"`
	MemoryGB    int             `json:"memory_gb"`
	StorageGB   int             `json:"storage_gb"`
	RunningHrs  int             `json:"running_hours"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	RawCost     decimal.Decimal `json:"raw_cost"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Processed   bool            `json:"processed"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BillStatus is the payment state of a monthly bill.
type BillStatus string

const (
	BillStatusDraft     BillStatus = "draft"
	BillStatusPending   BillStatus = "pending"
	BillStatusPartial   BillStatus = "partial"
	BillStatusPaid      BillStatus = "paid"
	BillStatusOverdue   BillStatus = "overdue"
	BillStatusCancelled BillStatus = "cancelled"
)

// MonthlyBill aggregates a billing account's daily records for one calendar
// month. BillNumber is assigned once at first save and never regenerated.
type MonthlyBill struct {
	ID               string          `json:"id"`
	BillingAccountID string          `json:"billing_account_id"`
	Year             int             `json:"year"`
	Month            time.Month      `json:"month"`
	BillNumber       string          `json:"bill_number"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	Status           BillStatus      `json:"status"`
	DueDate          time.Time       `json:"due_date"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Remaining is the unpaid balance.
func (b *MonthlyBill) Remaining() decimal.Decimal {
	return b.TotalAmount.Sub(b.PaidAmount)
}

// PaymentProgress is paid/total as a percentage. A zero-total bill counts
// as fully paid.
func (b *MonthlyBill) PaymentProgress() decimal.Decimal {
	if b.TotalAmount.IsZero() {
		return decimal.NewFromInt(100)
	}
	return b.PaidAmount.Div(b.TotalAmount).Mul(decimal.NewFromInt(100))
}

// IsOverdue reports whether the bill is past due and still collectible.
func (b *MonthlyBill) IsOverdue(now time.Time) bool {
	if b.Status == BillStatusPaid || b.Status == BillStatusCancelled {
		return false
	}
	return now.After(b.DueDate)
}

// PeriodOf returns the year and month the given date falls in, and the first
// day of that billing period at midnight UTC.
func PeriodOf(date time.Time) (int, time.Month, time.Time) {
	y, m, _ := date.UTC().Date()
	return y, m, time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates a timestamp to midnight UTC, the canonical form for
// billing dates.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
