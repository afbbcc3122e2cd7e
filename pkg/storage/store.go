package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
)

// ErrNotFound is returned for lookups with no matching row.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned by guarded writes when the row's current status no
// longer matches the expected one (a concurrent operation got there first).
var ErrConflict = errors.New("concurrent state change")

// Store defines the interface for persistent storage
type Store interface {
	// Virtual machines
	GetVM(ctx context.Context, id string) (*models.VirtualMachineRecord, error)
	GetVMByExternalID(ctx context.Context, externalID string) (*models.VirtualMachineRecord, error)
	ListTrackedVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error)
	ListVMsBySystem(ctx context.Context, systemID string) ([]*models.VirtualMachineRecord, error)
	ListRunningVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error)
	CreateVM(ctx context.Context, vm *models.VirtualMachineRecord) error
	UpdateVM(ctx context.Context, vm *models.VirtualMachineRecord) error
	DeleteVM(ctx context.Context, id string) error

	// Guarded writes for manual lifecycle operations: single-row
	// compare-then-write, ErrConflict when the expected status no longer
	// holds.
	UpdateVMStatusGuarded(ctx context.Context, id string, expect, target models.VMStatus, at time.Time) error
	UpdateVMSpecGuarded(ctx context.Context, id string, expect models.VMStatus, cpu, memoryGB, diskGB int) error
	DeleteVMGuarded(ctx context.Context, id string, expect models.VMStatus) error

	// Owning systems and aggregate adjustments
	GetSystem(ctx context.Context, id string) (*models.InformationSystem, error)
	ListSystems(ctx context.Context) ([]*models.InformationSystem, error)
	UpdateSystemTotals(ctx context.Context, systemID string, totals models.ResourceTotals) error
	AppendAdjustment(ctx context.Context, entry *models.ResourceAdjustmentLogEntry) error
	ListAdjustments(ctx context.Context, systemID string) ([]*models.ResourceAdjustmentLogEntry, error)

	// Billing
	DailyRecordExists(ctx context.Context, systemID string, date time.Time) (bool, error)
	CreateDailyRecord(ctx context.Context, rec *models.DailyBillingRecord) error
	SumFinalAmounts(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error)
	GetBill(ctx context.Context, accountID string, year int, month time.Month) (*models.MonthlyBill, error)
	CreateBill(ctx context.Context, bill *models.MonthlyBill) error
	UpdateBill(ctx context.Context, bill *models.MonthlyBill) error

	// Metric samples and alerts
	AppendMetricSample(ctx context.Context, sample *models.MetricSample) error
	ListSamplesSince(ctx context.Context, vmID string, since time.Time) ([]models.MetricSample, error)
	ListEnabledAlertRules(ctx context.Context) ([]*models.AlertRule, error)
	GetActiveAlertInstance(ctx context.Context, ruleID, vmID string) (*models.AlertInstance, error)
	CreateAlertInstance(ctx context.Context, inst *models.AlertInstance) error
	ResolveAlertInstance(ctx context.Context, id string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}
