package aggregator

import (
	"context"
	"log/slog"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Aggregator recomputes each system's cached resource totals from its VM
// records and logs an adjustment entry when they drift.
type Aggregator struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Run recomputes totals for every system. Unchanged aggregates produce no
// writes and no log entries; per-system errors are isolated and counted.
func (a *Aggregator) Run(ctx context.Context) (*models.AggregateSummary, error) {
	systems, err := a.store.ListSystems(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.AggregateSummary{}
	for _, sys := range systems {
		summary.Checked++
		adjusted, err := a.aggregateSystem(ctx, sys)
		if err != nil {
			a.logger.Error("failed to aggregate system", "system_id", sys.ID, "error", err)
			summary.Errored++
			continue
		}
		if adjusted {
			summary.Adjusted++
		}
	}
	return summary, nil
}

// aggregateSystem persists the recomputed triple and appends one adjustment
// entry iff the triple changed.
func (a *Aggregator) aggregateSystem(ctx context.Context, sys *models.InformationSystem) (bool, error) {
	vms, err := a.store.ListVMsBySystem(ctx, sys.ID)
	if err != nil {
		return false, err
	}

	var totals models.ResourceTotals
	for _, vm := range vms {
		totals.CPUCores += vm.CPUCores
		totals.MemoryGB += vm.MemoryGB
		totals.StorageGB += vm.DiskGB
	}

	kind, changed := models.ClassifyAdjustment(sys.Totals, totals)
	if !changed {
		return false, nil
	}

	if err := a.store.UpdateSystemTotals(ctx, sys.ID, totals); err != nil {
		return false, err
	}

	entry := &models.ResourceAdjustmentLogEntry{
		SystemID: sys.ID,
		Kind:     kind,
		Old:      sys.Totals,
		New:      totals,
	}
	if err := a.store.AppendAdjustment(ctx, entry); err != nil {
		return false, err
	}

	a.logger.Info("system aggregate adjusted",
		"system_id", sys.ID, "kind", kind,
		"cpu", totals.CPUCores, "memory_gb", totals.MemoryGB, "storage_gb", totals.StorageGB)

	sys.Totals = totals
	return true, nil
}
