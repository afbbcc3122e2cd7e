package alerting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cpuRule(vmID string) *models.AlertRule {
	return &models.AlertRule{
		ID:          "rule-cpu",
		Name:        "high cpu",
		MetricType:  models.MetricCPUPercent,
		Operator:    models.OperatorGreaterThan,
		Threshold:   80,
		DurationMin: 5,
		MinSamples:  3,
		Enabled:     true,
		VMID:        vmID,
	}
}

func seedRunningVM(t *testing.T, store *storage.MemoryStore, id string) {
	t.Helper()
	err := store.CreateVM(context.Background(), &models.VirtualMachineRecord{
		ID: id, SystemID: "sys-1", Name: id,
		CPUCores: 2, MemoryGB: 4, DiskGB: 40, Status: models.VMStatusRunning,
	})
	if err != nil {
		t.Fatalf("seed VM: %v", err)
	}
}

func addSamples(t *testing.T, store *storage.MemoryStore, vmID string, values ...float64) {
	t.Helper()
	now := time.Now()
	for i, v := range values {
		err := store.AppendMetricSample(context.Background(), &models.MetricSample{
			VMID:       vmID,
			Timestamp:  now.Add(-time.Duration(len(values)-i) * 30 * time.Second),
			CPUPercent: v,
		})
		if err != nil {
			t.Fatalf("seed sample: %v", err)
		}
	}
}

func TestAlertFiresOnlyWhenAllSamplesViolate(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	store.AddRule(cpuRule("vm-1"))
	addSamples(t, store, "vm-1", 85, 85, 70, 85, 85)

	summary, err := New(store, testLogger(), 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Fired != 0 {
		t.Errorf("one non-violating sample must prevent firing, got %+v", summary)
	}
	if store.ActiveInstanceCount() != 0 {
		t.Errorf("expected no active instances, got %d", store.ActiveInstanceCount())
	}
}

func TestAlertFiresAndDoesNotDuplicate(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	store.AddRule(cpuRule("vm-1"))
	addSamples(t, store, "vm-1", 85, 86, 87, 88, 89)

	eval := New(store, testLogger(), 3)
	summary, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Fired != 1 {
		t.Fatalf("expected one fired alert, got %+v", summary)
	}
	if store.ActiveInstanceCount() != 1 {
		t.Fatalf("expected exactly one active instance, got %d", store.ActiveInstanceCount())
	}

	inst, err := store.GetActiveAlertInstance(context.Background(), "rule-cpu", "vm-1")
	if err != nil {
		t.Fatalf("active instance not found: %v", err)
	}
	if inst.Value != 89 {
		t.Errorf("instance must carry the latest value, got %.1f", inst.Value)
	}

	// Still all-violating: re-evaluation must not create a second instance.
	summary, err = eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Fired != 0 || store.ActiveInstanceCount() != 1 {
		t.Errorf("sustained violation must not duplicate, got %+v (%d active)", summary, store.ActiveInstanceCount())
	}
}

func TestActiveAlertResolvesOnNonViolation(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	store.AddRule(cpuRule("vm-1"))
	addSamples(t, store, "vm-1", 85, 86, 87, 88, 89)

	eval := New(store, testLogger(), 3)
	if _, err := eval.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Load drops for one sample: the active alert resolves.
	addSamples(t, store, "vm-1", 60)
	summary, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Resolved != 1 {
		t.Fatalf("expected one resolved alert, got %+v", summary)
	}
	if store.ActiveInstanceCount() != 0 {
		t.Errorf("expected no active instances after resolution, got %d", store.ActiveInstanceCount())
	}

	// The pair can re-enter active on a fresh sustained violation.
	addSamples(t, store, "vm-1", 90, 91, 92, 93, 94)
	summary, err = eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Fired != 1 || store.ActiveInstanceCount() != 1 {
		t.Errorf("expected re-entry to active, got %+v (%d active)", summary, store.ActiveInstanceCount())
	}
}

func TestUnderCoverageWindowIsIndeterminate(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	store.AddRule(cpuRule("vm-1"))
	addSamples(t, store, "vm-1", 85, 86, 87, 88, 89)

	eval := New(store, testLogger(), 3)
	if _, err := eval.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.ActiveInstanceCount() != 1 {
		t.Fatalf("expected an active alert to start from")
	}

	// Move the clock past the window: only stale samples remain, so the
	// window is empty. Neither firing nor resolution may happen.
	eval.now = func() time.Time { return time.Now().Add(time.Hour) }
	summary, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Indeterminate == 0 {
		t.Errorf("expected the window to be reported indeterminate, got %+v", summary)
	}
	if summary.Fired != 0 || summary.Resolved != 0 {
		t.Errorf("indeterminate windows must not fire or resolve, got %+v", summary)
	}
	if store.ActiveInstanceCount() != 1 {
		t.Errorf("active alert must survive an indeterminate window, got %d", store.ActiveInstanceCount())
	}
}

func TestGlobalRuleScopesToRunningVMs(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	seedRunningVM(t, store, "vm-2")
	// A stopped VM is out of scope for global rules.
	err := store.CreateVM(context.Background(), &models.VirtualMachineRecord{
		ID: "vm-3", SystemID: "sys-1", Name: "vm-3",
		CPUCores: 1, MemoryGB: 1, DiskGB: 10, Status: models.VMStatusStopped,
	})
	if err != nil {
		t.Fatalf("seed VM: %v", err)
	}

	store.AddRule(cpuRule("")) // global
	addSamples(t, store, "vm-1", 85, 86, 87)
	addSamples(t, store, "vm-2", 50, 51, 52)
	addSamples(t, store, "vm-3", 99, 99, 99)

	summary, err := New(store, testLogger(), 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Evaluated != 2 {
		t.Errorf("global rule must cover only running VMs, got %+v", summary)
	}
	if summary.Fired != 1 {
		t.Errorf("expected only vm-1 to fire, got %+v", summary)
	}
	if _, err := store.GetActiveAlertInstance(context.Background(), "rule-cpu", "vm-3"); err == nil {
		t.Error("stopped VM must not receive alerts from a global rule")
	}
}

func TestLessThanOperator(t *testing.T) {
	store := storage.NewMemoryStore()
	seedRunningVM(t, store, "vm-1")
	store.AddRule(&models.AlertRule{
		ID: "rule-low", Name: "idle cpu", MetricType: models.MetricCPUPercent,
		Operator: models.OperatorLessThan, Threshold: 5, DurationMin: 5, MinSamples: 3,
		Enabled: true, VMID: "vm-1",
	})
	addSamples(t, store, "vm-1", 1, 2, 1)

	summary, err := New(store, testLogger(), 3).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Fired != 1 {
		t.Errorf("expected lt rule to fire, got %+v", summary)
	}
}
