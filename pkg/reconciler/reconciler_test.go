package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/cloud"
	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/notifier"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

type fakeCloud struct {
	items   []cloud.InventoryItem
	flavors map[string]*cloud.Flavor
	listErr error
}

func (f *fakeCloud) ListInventory(ctx context.Context) ([]cloud.InventoryItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeCloud) GetItem(ctx context.Context, externalID string) (*cloud.InventoryItem, error) {
	for i := range f.items {
		if f.items[i].ExternalID == externalID {
			return &f.items[i], nil
		}
	}
	return nil, cloud.ErrNotFound
}

func (f *fakeCloud) GetSpec(ctx context.Context, flavorID string) (*cloud.Flavor, error) {
	if flavor, ok := f.flavors[flavorID]; ok {
		return flavor, nil
	}
	return nil, cloud.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler(store storage.Store, fc *fakeCloud) *Reconciler {
	return New(store, fc, notifier.Noop{}, testLogger(), "sys-fallback", time.Second)
}

func seedVM(t *testing.T, store *storage.MemoryStore, vm *models.VirtualMachineRecord) {
	t.Helper()
	if err := store.CreateVM(context.Background(), vm); err != nil {
		t.Fatalf("seed VM: %v", err)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items: []cloud.InventoryItem{{
			ExternalID: "ext-1", Name: "web-1", Status: "ACTIVE", FlavorID: "m1",
			Addresses: []string{"10.0.0.5"}, MACAddress: "aa:bb:cc:dd:ee:01", AvailabilityZone: "az1",
		}},
		flavors: map[string]*cloud.Flavor{"m1": {ID: "m1", VCPUs: 2, RAMMB: 4096, DiskG: 100}},
	}
	start := time.Now().Add(-time.Hour)
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusRunning,
		IPAddress: "10.0.0.5", MACAddress: "aa:bb:cc:dd:ee:01", AvailabilityZone: "az1",
		LastStartAt: &start,
	})

	r := newTestReconciler(store, fc)
	writesBefore := store.Writes

	summary, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Updated != 0 || summary.Errored != 0 {
		t.Errorf("expected no changes against a matching snapshot, got %+v", summary)
	}
	if store.Writes != writesBefore {
		t.Errorf("expected zero writes, got %d", store.Writes-writesBefore)
	}

	// Introduce drift, converge, then verify the second run writes nothing.
	fc.flavors["m1"].VCPUs = 4
	summary, err = r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Updated != 1 {
		t.Fatalf("expected 1 update after drift, got %d", summary.Updated)
	}

	writesBefore = store.Writes
	summary, err = r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Updated != 0 || store.Writes != writesBefore {
		t.Errorf("second run against unchanged snapshot should be a no-op, got %+v (writes %d)",
			summary, store.Writes-writesBefore)
	}
}

func TestStatusConvergenceLeavesStartTime(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items:   []cloud.InventoryItem{{ExternalID: "ext-1", Name: "web-1", Status: "SHUTOFF", FlavorID: "m1"}},
		flavors: map[string]*cloud.Flavor{"m1": {ID: "m1", VCPUs: 2, RAMMB: 4096, DiskG: 100}},
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusRunning,
		LastStartAt: &started,
	})

	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Updated != 1 {
		t.Fatalf("expected 1 update, got %d", summary.Updated)
	}

	vm, _ := store.GetVM(context.Background(), "vm-1")
	if vm.Status != models.VMStatusStopped {
		t.Errorf("expected status stopped, got %s", vm.Status)
	}
	if vm.LastStartAt == nil || !vm.LastStartAt.Equal(started) {
		t.Errorf("last start time must be untouched on a transition out of running, got %v", vm.LastStartAt)
	}
}

func TestStartTimeBackfillOnTransitionIntoRunning(t *testing.T) {
	store := storage.NewMemoryStore()
	launched := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	fc := &fakeCloud{
		items: []cloud.InventoryItem{{
			ExternalID: "ext-1", Name: "web-1", Status: "ACTIVE", FlavorID: "m1", LaunchedAt: &launched,
		}},
		flavors: map[string]*cloud.Flavor{"m1": {ID: "m1", VCPUs: 2, RAMMB: 4096, DiskG: 100}},
	}
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusStopped,
	})

	if _, err := newTestReconciler(store, fc).Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	vm, _ := store.GetVM(context.Background(), "vm-1")
	if vm.Status != models.VMStatusRunning {
		t.Fatalf("expected status running, got %s", vm.Status)
	}
	if vm.LastStartAt == nil || !vm.LastStartAt.Equal(launched) {
		t.Errorf("expected start time backfilled from remote launch time, got %v", vm.LastStartAt)
	}
}

func TestSpecDrift(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items:   []cloud.InventoryItem{{ExternalID: "ext-1", Name: "web-1", Status: "ACTIVE", FlavorID: "m2"}},
		flavors: map[string]*cloud.Flavor{"m2": {ID: "m2", VCPUs: 4, RAMMB: 8192, DiskG: 100}},
	}
	start := time.Now()
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusRunning, LastStartAt: &start,
	})

	if _, err := newTestReconciler(store, fc).Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	vm, _ := store.GetVM(context.Background(), "vm-1")
	if vm.CPUCores != 4 || vm.MemoryGB != 8 || vm.DiskGB != 100 {
		t.Errorf("expected spec {4, 8, 100}, got {%d, %d, %d}", vm.CPUCores, vm.MemoryGB, vm.DiskGB)
	}
}

func TestUnknownRemoteStatusKeepsCurrent(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items:   []cloud.InventoryItem{{ExternalID: "ext-1", Name: "web-1", Status: "REBOOT", FlavorID: "m1"}},
		flavors: map[string]*cloud.Flavor{"m1": {ID: "m1", VCPUs: 2, RAMMB: 4096, DiskG: 100}},
	}
	start := time.Now()
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusRunning, LastStartAt: &start,
	})

	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Updated != 0 {
		t.Errorf("unmapped remote status should not count as a change, got %+v", summary)
	}
	vm, _ := store.GetVM(context.Background(), "vm-1")
	if vm.Status != models.VMStatusRunning {
		t.Errorf("expected status kept as running, got %s", vm.Status)
	}
}

func TestNotFoundDefaultModeSkips(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{}
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-gone", SystemID: "sys-1", Name: "web-1",
		CPUCores: 1, MemoryGB: 1, DiskGB: 10, Status: models.VMStatusStopped,
	})

	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.NotFound != 1 || summary.Deleted != 0 {
		t.Errorf("expected not_found=1 deleted=0, got %+v", summary)
	}
	if _, err := store.GetVM(context.Background(), "vm-1"); err != nil {
		t.Error("VM must survive a not-found in default mode")
	}
}

func TestCleanupDeletedRemovesLocalRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{}
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-gone", SystemID: "sys-1", Name: "web-1",
		CPUCores: 1, MemoryGB: 1, DiskGB: 10, Status: models.VMStatusStopped,
	})

	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{CleanupDeleted: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Deleted != 1 {
		t.Fatalf("expected deleted=1, got %+v", summary)
	}
	if _, err := store.GetVM(context.Background(), "vm-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("VM should be deleted in cleanup mode")
	}
}

func TestCreateMissingImportsRemoteOnlyItems(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items: []cloud.InventoryItem{
			{ExternalID: "ext-new", Name: "db-1", Status: "ACTIVE", FlavorID: "m1", Addresses: []string{"10.0.0.9"}},
			{ExternalID: "ext-odd", Name: "db-2", Status: "SHUTOFF", FlavorID: "unknown-flavor"},
		},
		flavors: map[string]*cloud.Flavor{"m1": {ID: "m1", VCPUs: 2, RAMMB: 4096, DiskG: 50}},
	}

	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{CreateMissing: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Created != 2 {
		t.Fatalf("expected created=2, got %+v", summary)
	}

	vm, err := store.GetVMByExternalID(context.Background(), "ext-new")
	if err != nil {
		t.Fatalf("imported VM not found: %v", err)
	}
	if vm.SystemID != "sys-fallback" {
		t.Errorf("expected fallback system owner, got %s", vm.SystemID)
	}
	if vm.CPUCores != 2 || vm.MemoryGB != 4 || vm.DiskGB != 50 {
		t.Errorf("expected spec from flavor, got {%d, %d, %d}", vm.CPUCores, vm.MemoryGB, vm.DiskGB)
	}
	if vm.IPAddress != "10.0.0.9" {
		t.Errorf("expected ip from first address, got %q", vm.IPAddress)
	}
	if vm.Status != models.VMStatusRunning {
		t.Errorf("expected running from ACTIVE, got %s", vm.Status)
	}

	// Unresolvable flavor falls back to the conservative default spec.
	odd, err := store.GetVMByExternalID(context.Background(), "ext-odd")
	if err != nil {
		t.Fatalf("imported VM not found: %v", err)
	}
	if odd.CPUCores != 1 || odd.MemoryGB != 1 || odd.DiskGB != 10 {
		t.Errorf("expected default spec {1, 1, 10}, got {%d, %d, %d}", odd.CPUCores, odd.MemoryGB, odd.DiskGB)
	}
}

func TestDryRunReportsWithoutPersisting(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{
		items:   []cloud.InventoryItem{{ExternalID: "ext-1", Name: "web-1", Status: "SHUTOFF", FlavorID: "m2"}},
		flavors: map[string]*cloud.Flavor{"m2": {ID: "m2", VCPUs: 4, RAMMB: 8192, DiskG: 100}},
	}
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 2, MemoryGB: 4, DiskGB: 100, Status: models.VMStatusRunning,
	})

	writesBefore := store.Writes
	summary, err := newTestReconciler(store, fc).Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Updated != 1 || len(summary.Changes) != 1 {
		t.Fatalf("dry run must report the same change set as a live run, got %+v", summary)
	}
	if len(summary.Changes[0].Changes) < 2 {
		t.Errorf("expected cpu, memory and status changes reported, got %v", summary.Changes[0].Changes)
	}
	if store.Writes != writesBefore {
		t.Errorf("dry run must not persist, got %d writes", store.Writes-writesBefore)
	}

	vm, _ := store.GetVM(context.Background(), "vm-1")
	if vm.CPUCores != 2 || vm.Status != models.VMStatusRunning {
		t.Errorf("dry run mutated the record: %+v", vm)
	}
}

func TestUnreachableRemoteAbortsWithZeroSideEffects(t *testing.T) {
	store := storage.NewMemoryStore()
	fc := &fakeCloud{listErr: errors.New("connection refused")}
	seedVM(t, store, &models.VirtualMachineRecord{
		ID: "vm-1", ExternalID: "ext-1", SystemID: "sys-1", Name: "web-1",
		CPUCores: 1, MemoryGB: 1, DiskGB: 10, Status: models.VMStatusStopped,
	})

	writesBefore := store.Writes
	if _, err := newTestReconciler(store, fc).Run(context.Background(), Options{CleanupDeleted: true}); err == nil {
		t.Fatal("expected an error when the remote API is unreachable")
	}
	if store.Writes != writesBefore {
		t.Errorf("aborted run must have zero side effects, got %d writes", store.Writes-writesBefore)
	}
}
