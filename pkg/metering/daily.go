package metering

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Engine derives billing records from system resource snapshots.
type Engine struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store storage.Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// RunDaily creates one billing record per system for the target date,
// normally yesterday. An existing (system, date) record is the sole
// idempotency guard: those systems are skipped, everything else is metered
// from its current aggregate.
func (e *Engine) RunDaily(ctx context.Context, date time.Time) (*models.MeterSummary, error) {
	systems, err := e.store.ListSystems(ctx)
	if err != nil {
		return nil, err
	}

	date = models.DateOnly(date)
	summary := &models.MeterSummary{}

	for _, sys := range systems {
		exists, err := e.store.DailyRecordExists(ctx, sys.ID, date)
		if err != nil {
			e.logger.Error("failed to check daily record", "system_id", sys.ID, "error", err)
			summary.Errored++
			continue
		}
		if exists {
			summary.Skipped++
			continue
		}

		if err := e.meterSystem(ctx, sys, date); err != nil {
			e.logger.Error("failed to meter system", "system_id", sys.ID, "date", date.Format("2006-01-02"), "error", err)
			summary.Errored++
			continue
		}
		summary.Created++
	}

	return summary, nil
}

func (e *Engine) meterSystem(ctx context.Context, sys *models.InformationSystem, date time.Time) error {
	hours := sys.RunningHoursPerDay()
	rate := HourlyRate(sys.Totals.CPUCores, sys.Totals.MemoryGB, sys.Totals.StorageGB)
	rawCost := rate.Mul(decimal.NewFromInt(int64(hours)))

	discount := sys.Discount
	if discount.IsZero() {
		discount = decimal.NewFromInt(1)
	}

	rec := &models.DailyBillingRecord{
		SystemID:    sys.ID,
		BillingDate: date,
		CPUCores:    sys.Totals.CPUCores,
		MemoryGB:    sys.Totals.MemoryGB,
		StorageGB:   sys.Totals.StorageGB,
		RunningHrs:  hours,
		HourlyRate:  rate,
		RawCost:     rawCost,
		Discount:    discount,
		FinalAmount: rawCost.Mul(discount),
		Processed:   true,
	}

	return e.store.CreateDailyRecord(ctx, rec)
}
