package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/cloud"
	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/notifier"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Conservative spec for imported VMs whose flavor cannot be resolved.
var defaultSpec = cloud.Flavor{VCPUs: 1, RAMMB: 1024, DiskG: 10}

// Reconciler converges local VM records to the remote inventory snapshot.
type Reconciler struct {
	store       storage.Store
	cloud       cloud.Client
	events      notifier.Publisher
	logger      *slog.Logger
	fallbackSys string
	itemTimeout time.Duration
	now         func() time.Time
}

// Options selects the optional behaviors of one run.
type Options struct {
	// DryRun computes the same change set as a live run but persists
	// nothing and publishes nothing.
	DryRun bool
	// CreateMissing imports remote items with no local record, attaching
	// them to the fallback system.
	CreateMissing bool
	// CleanupDeleted removes local records whose remote counterpart is
	// gone. Without it, absence upstream is only logged.
	CleanupDeleted bool
}

func New(store storage.Store, client cloud.Client, events notifier.Publisher, logger *slog.Logger, fallbackSystemID string, itemTimeout time.Duration) *Reconciler {
	if itemTimeout <= 0 {
		itemTimeout = 10 * time.Second
	}
	return &Reconciler{
		store:       store,
		cloud:       client,
		events:      events,
		logger:      logger,
		fallbackSys: fallbackSystemID,
		itemTimeout: itemTimeout,
		now:         time.Now,
	}
}

// Run executes one reconciliation pass. A failure to fetch the remote
// snapshot aborts with zero side effects; every later error is confined to
// its item and counted.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*models.ReconcileSummary, error) {
	items, err := r.cloud.ListInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote inventory unreachable: %w", err)
	}

	remote := make(map[string]*cloud.InventoryItem, len(items))
	for i := range items {
		remote[items[i].ExternalID] = &items[i]
	}

	locals, err := r.store.ListTrackedVMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked VMs: %w", err)
	}

	summary := &models.ReconcileSummary{}

	seen := make(map[string]bool, len(locals))
	for _, vm := range locals {
		seen[vm.ExternalID] = true
		r.reconcileOne(ctx, vm, remote[vm.ExternalID], opts, summary)
	}

	if opts.CreateMissing {
		for i := range items {
			if !seen[items[i].ExternalID] {
				r.importOne(ctx, &items[i], opts, summary)
			}
		}
	}

	return summary, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, vm *models.VirtualMachineRecord, item *cloud.InventoryItem, opts Options, summary *models.ReconcileSummary) {
	if item == nil {
		r.handleMissing(ctx, vm, opts, summary)
		return
	}

	changes, statusChanged, oldStatus := r.applyRemote(ctx, vm, item)
	if len(changes) == 0 {
		return
	}

	summary.Updated++
	summary.Changes = append(summary.Changes, models.VMChange{
		VMID:       vm.ID,
		ExternalID: vm.ExternalID,
		Name:       vm.Name,
		Changes:    changes,
	})

	if opts.DryRun {
		return
	}

	if err := r.store.UpdateVM(ctx, vm); err != nil {
		r.logger.Error("failed to update VM", "vm_id", vm.ID, "external_id", vm.ExternalID, "error", err)
		summary.Updated--
		summary.Changes = summary.Changes[:len(summary.Changes)-1]
		summary.Errored++
		return
	}

	if statusChanged {
		r.publishStatusChange(ctx, vm, oldStatus)
	}
}

// handleMissing covers a tracked VM with no remote counterpart. Default mode
// logs and counts; cleanup mode deletes after a direct lookup confirms the
// snapshot was not just stale.
func (r *Reconciler) handleMissing(ctx context.Context, vm *models.VirtualMachineRecord, opts Options, summary *models.ReconcileSummary) {
	if !opts.CleanupDeleted {
		r.logger.Info("VM not found upstream, skipping", "vm_id", vm.ID, "external_id", vm.ExternalID)
		summary.NotFound++
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	item, err := r.cloud.GetItem(lookupCtx, vm.ExternalID)
	cancel()
	if err == nil {
		// Snapshot raced a freshly created instance; reconcile normally.
		r.reconcileOne(ctx, vm, item, opts, summary)
		return
	}
	if !errors.Is(err, cloud.ErrNotFound) {
		r.logger.Error("failed to confirm VM absence", "vm_id", vm.ID, "external_id", vm.ExternalID, "error", err)
		summary.Errored++
		return
	}

	summary.Deleted++
	summary.Changes = append(summary.Changes, models.VMChange{
		VMID:       vm.ID,
		ExternalID: vm.ExternalID,
		Name:       vm.Name,
		Changes:    []string{"deleted: no longer present upstream"},
	})

	if opts.DryRun {
		return
	}

	if err := r.store.DeleteVM(ctx, vm.ID); err != nil {
		r.logger.Error("failed to delete VM", "vm_id", vm.ID, "error", err)
		summary.Deleted--
		summary.Changes = summary.Changes[:len(summary.Changes)-1]
		summary.Errored++
	}
}

// applyRemote mutates vm to match the remote item and returns the change
// list. Both dry-run and live paths go through here; dry-run simply skips
// the write afterwards.
func (r *Reconciler) applyRemote(ctx context.Context, vm *models.VirtualMachineRecord, item *cloud.InventoryItem) (changes []string, statusChanged bool, oldStatus models.VMStatus) {
	oldStatus = vm.Status

	if flavor := r.resolveSpec(ctx, item); flavor != nil {
		memoryGB := flavor.RAMMB / 1024
		if vm.CPUCores != flavor.VCPUs {
			changes = append(changes, fmt.Sprintf("cpu: %d -> %d", vm.CPUCores, flavor.VCPUs))
			vm.CPUCores = flavor.VCPUs
		}
		if vm.MemoryGB != memoryGB {
			changes = append(changes, fmt.Sprintf("memory: %dGB -> %dGB", vm.MemoryGB, memoryGB))
			vm.MemoryGB = memoryGB
		}
		if vm.DiskGB != flavor.DiskG {
			changes = append(changes, fmt.Sprintf("disk: %dGB -> %dGB", vm.DiskGB, flavor.DiskG))
			vm.DiskGB = flavor.DiskG
		}
	}

	if mapped, ok := cloud.MapStatus(item.Status); ok && mapped != vm.Status {
		changes = append(changes, fmt.Sprintf("status: %s -> %s", vm.Status, mapped))
		vm.Status = mapped
		statusChanged = true

		if mapped == models.VMStatusRunning && vm.LastStartAt == nil {
			start := r.startTimeFor(item)
			vm.LastStartAt = &start
			changes = append(changes, fmt.Sprintf("last_start_at: %s", start.Format(time.RFC3339)))
		}
	}

	if ip := item.PrimaryAddress(); ip != "" && ip != vm.IPAddress {
		changes = append(changes, fmt.Sprintf("ip: %s -> %s", vm.IPAddress, ip))
		vm.IPAddress = ip
	}
	if item.MACAddress != "" && item.MACAddress != vm.MACAddress {
		changes = append(changes, fmt.Sprintf("mac: %s -> %s", vm.MACAddress, item.MACAddress))
		vm.MACAddress = item.MACAddress
	}
	if item.AvailabilityZone != "" && item.AvailabilityZone != vm.AvailabilityZone {
		changes = append(changes, fmt.Sprintf("az: %s -> %s", vm.AvailabilityZone, item.AvailabilityZone))
		vm.AvailabilityZone = item.AvailabilityZone
	}

	return changes, statusChanged, oldStatus
}

// startTimeFor picks the recorded start time for a VM observed running:
// the remote launch timestamp, then its creation timestamp, then now.
func (r *Reconciler) startTimeFor(item *cloud.InventoryItem) time.Time {
	if item.LaunchedAt != nil {
		return *item.LaunchedAt
	}
	if item.CreatedAt != nil {
		return *item.CreatedAt
	}
	return r.now()
}

// resolveSpec fetches the item's flavor, or nil when it cannot be resolved.
func (r *Reconciler) resolveSpec(ctx context.Context, item *cloud.InventoryItem) *cloud.Flavor {
	if item.FlavorID == "" {
		return nil
	}
	specCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	defer cancel()

	flavor, err := r.cloud.GetSpec(specCtx, item.FlavorID)
	if err != nil {
		r.logger.Warn("flavor unresolvable, leaving spec unchanged",
			"external_id", item.ExternalID, "flavor_id", item.FlavorID, "error", err)
		return nil
	}
	return flavor
}

// importOne creates a local record for a remote-only item under the fallback
// system.
func (r *Reconciler) importOne(ctx context.Context, item *cloud.InventoryItem, opts Options, summary *models.ReconcileSummary) {
	if item.ExternalID == "" || item.Name == "" {
		r.logger.Error("remote item missing required fields, skipping", "external_id", item.ExternalID)
		summary.Errored++
		return
	}
	if r.fallbackSys == "" {
		r.logger.Error("no fallback system configured, cannot import", "external_id", item.ExternalID)
		summary.Errored++
		return
	}

	spec := defaultSpec
	if flavor := r.resolveSpec(ctx, item); flavor != nil {
		spec = *flavor
	}

	status := models.VMStatusStopped
	if mapped, ok := cloud.MapStatus(item.Status); ok {
		status = mapped
	}

	vm := &models.VirtualMachineRecord{
		ExternalID:       item.ExternalID,
		SystemID:         r.fallbackSys,
		Name:             item.Name,
		CPUCores:         spec.VCPUs,
		MemoryGB:         spec.RAMMB / 1024,
		DiskGB:           spec.DiskG,
		Status:           status,
		IPAddress:        item.PrimaryAddress(),
		MACAddress:       item.MACAddress,
		AvailabilityZone: item.AvailabilityZone,
	}
	if status == models.VMStatusRunning {
		start := r.startTimeFor(item)
		vm.LastStartAt = &start
	}

	summary.Created++
	summary.Changes = append(summary.Changes, models.VMChange{
		ExternalID: item.ExternalID,
		Name:       item.Name,
		Changes:    []string{fmt.Sprintf("imported: %d cpu, %dGB memory, %dGB disk, status %s", vm.CPUCores, vm.MemoryGB, vm.DiskGB, status)},
	})

	if opts.DryRun {
		return
	}

	if err := r.store.CreateVM(ctx, vm); err != nil {
		r.logger.Error("failed to import VM", "external_id", item.ExternalID, "error", err)
		summary.Created--
		summary.Changes = summary.Changes[:len(summary.Changes)-1]
		summary.Errored++
	}
}

func (r *Reconciler) publishStatusChange(ctx context.Context, vm *models.VirtualMachineRecord, oldStatus models.VMStatus) {
	ev := notifier.StatusChangeEvent{
		VMID:       vm.ID,
		ExternalID: vm.ExternalID,
		Name:       vm.Name,
		OldStatus:  oldStatus,
		NewStatus:  vm.Status,
		Timestamp:  r.now(),
	}
	if err := r.events.PublishStatusChange(ctx, ev); err != nil {
		r.logger.Warn("failed to publish status change", "vm_id", vm.ID, "error", err)
	}
}
