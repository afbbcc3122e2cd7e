package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Evaluator tests metric-sample windows against threshold rules and drives
// the alert-instance lifecycle: none -> active -> resolved, re-enterable.
type Evaluator struct {
	store      storage.Store
	logger     *slog.Logger
	minSamples int // floor applied to rules that don't set their own
	now        func() time.Time
}

func New(store storage.Store, logger *slog.Logger, minSamples int) *Evaluator {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Evaluator{
		store:      store,
		logger:     logger,
		minSamples: minSamples,
		now:        time.Now,
	}
}

// Run evaluates every enabled rule against every VM in its scope. A rule
// fires only when every sample in its window violates the threshold; one
// non-violating sample resolves any active instance. Windows below the
// coverage floor are indeterminate and change nothing either way.
func (e *Evaluator) Run(ctx context.Context) (*models.AlertSummary, error) {
	rules, err := e.store.ListEnabledAlertRules(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.AlertSummary{}
	for _, rule := range rules {
		vms, err := e.scopeVMs(ctx, rule)
		if err != nil {
			e.logger.Error("failed to resolve rule scope", "rule_id", rule.ID, "error", err)
			continue
		}
		for _, vm := range vms {
			e.evaluatePair(ctx, rule, vm, summary)
		}
	}
	return summary, nil
}

// scopeVMs returns the single scoped VM, or every running VM for a global
// rule.
func (e *Evaluator) scopeVMs(ctx context.Context, rule *models.AlertRule) ([]*models.VirtualMachineRecord, error) {
	if rule.VMID != "" {
		vm, err := e.store.GetVM(ctx, rule.VMID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []*models.VirtualMachineRecord{vm}, nil
	}
	return e.store.ListRunningVMs(ctx)
}

func (e *Evaluator) evaluatePair(ctx context.Context, rule *models.AlertRule, vm *models.VirtualMachineRecord, summary *models.AlertSummary) {
	summary.Evaluated++

	since := e.now().Add(-time.Duration(rule.DurationMin) * time.Minute)
	samples, err := e.store.ListSamplesSince(ctx, vm.ID, since)
	if err != nil {
		e.logger.Error("failed to fetch samples", "rule_id", rule.ID, "vm_id", vm.ID, "error", err)
		return
	}

	floor := rule.MinSamples
	if floor < 1 {
		floor = e.minSamples
	}
	if len(samples) < floor {
		summary.Indeterminate++
		return
	}

	allViolate := true
	for i := range samples {
		if !rule.Violates(samples[i].ValueFor(rule.MetricType)) {
			allViolate = false
			break
		}
	}

	if allViolate {
		e.fire(ctx, rule, vm, samples[len(samples)-1].ValueFor(rule.MetricType), summary)
	} else {
		e.resolve(ctx, rule, vm, summary)
	}
}

func (e *Evaluator) fire(ctx context.Context, rule *models.AlertRule, vm *models.VirtualMachineRecord, latest float64, summary *models.AlertSummary) {
	_, err := e.store.GetActiveAlertInstance(ctx, rule.ID, vm.ID)
	if err == nil {
		// Already active; sustained violations don't duplicate.
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("failed to look up active alert", "rule_id", rule.ID, "vm_id", vm.ID, "error", err)
		return
	}

	inst := &models.AlertInstance{
		RuleID:    rule.ID,
		VMID:      vm.ID,
		Value:     latest,
		Message:   formatMessage(rule, vm, latest),
		Status:    models.AlertActive,
		StartedAt: e.now(),
	}
	if err := e.store.CreateAlertInstance(ctx, inst); err != nil {
		e.logger.Error("failed to create alert instance", "rule_id", rule.ID, "vm_id", vm.ID, "error", err)
		return
	}

	summary.Fired++
	e.logger.Warn("alert fired", "rule", rule.Name, "vm", vm.Name, "value", latest)
}

func (e *Evaluator) resolve(ctx context.Context, rule *models.AlertRule, vm *models.VirtualMachineRecord, summary *models.AlertSummary) {
	inst, err := e.store.GetActiveAlertInstance(ctx, rule.ID, vm.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		e.logger.Error("failed to look up active alert", "rule_id", rule.ID, "vm_id", vm.ID, "error", err)
		return
	}

	if err := e.store.ResolveAlertInstance(ctx, inst.ID, e.now()); err != nil {
		e.logger.Error("failed to resolve alert instance", "alert_id", inst.ID, "error", err)
		return
	}

	summary.Resolved++
	e.logger.Info("alert resolved", "rule", rule.Name, "vm", vm.Name)
}

func formatMessage(rule *models.AlertRule, vm *models.VirtualMachineRecord, value float64) string {
	op := ">"
	if rule.Operator == models.OperatorLessThan {
		op = "<"
	}
	return fmt.Sprintf("%s: %s %.1f %s %.1f for %dm on %s",
		rule.Name, rule.MetricType, value, op, rule.Threshold, rule.DurationMin, vm.Name)
}
