package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/notifier"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Manager applies operator-invoked VM lifecycle operations. Every mutation
// follows the same pattern: read the row, validate that the transition is
// allowed from the observed status, then write guarded on that status so
// two concurrent operators cannot double-apply it.
type Manager struct {
	store  storage.Store
	events notifier.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(store storage.Store, events notifier.Publisher, logger *slog.Logger) *Manager {
	return &Manager{store: store, events: events, logger: logger, now: time.Now}
}

// Start moves a stopped or paused VM to running.
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.transition(ctx, id, models.VMStatusRunning)
}

// Stop moves a VM out of running (or paused/error) to stopped.
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.transition(ctx, id, models.VMStatusStopped)
}

// Pause suspends a running VM.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.transition(ctx, id, models.VMStatusPaused)
}

func (m *Manager) transition(ctx context.Context, id string, target models.VMStatus) error {
	vm, err := m.store.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if !vm.CanTransition(target) {
		return fmt.Errorf("cannot move VM %s from %s to %s", vm.Name, vm.Status, target)
	}

	at := m.now()
	if err := m.store.UpdateVMStatusGuarded(ctx, id, vm.Status, target, at); err != nil {
		return fmt.Errorf("failed to apply %s on VM %s: %w", target, vm.Name, err)
	}

	ev := notifier.StatusChangeEvent{
		VMID:       vm.ID,
		ExternalID: vm.ExternalID,
		Name:       vm.Name,
		OldStatus:  vm.Status,
		NewStatus:  target,
		Timestamp:  at,
	}
	if err := m.events.PublishStatusChange(ctx, ev); err != nil {
		m.logger.Warn("failed to publish status change", "vm_id", vm.ID, "error", err)
	}

	m.logger.Info("VM status changed", "vm_id", vm.ID, "name", vm.Name, "from", vm.Status, "to", target)
	return nil
}

// Resize changes a VM's resource spec. Only stopped VMs may be resized.
func (m *Manager) Resize(ctx context.Context, id string, cpu, memoryGB, diskGB int) error {
	if cpu < 1 || memoryGB < 1 || diskGB < 1 {
		return fmt.Errorf("invalid spec: cpu=%d memory=%d disk=%d", cpu, memoryGB, diskGB)
	}

	vm, err := m.store.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if vm.Status != models.VMStatusStopped {
		return fmt.Errorf("cannot resize VM %s while %s", vm.Name, vm.Status)
	}

	if err := m.store.UpdateVMSpecGuarded(ctx, id, models.VMStatusStopped, cpu, memoryGB, diskGB); err != nil {
		return fmt.Errorf("failed to resize VM %s: %w", vm.Name, err)
	}

	m.logger.Info("VM resized", "vm_id", vm.ID, "name", vm.Name, "cpu", cpu, "memory_gb", memoryGB, "disk_gb", diskGB)
	return nil
}

// Delete removes a stopped or errored VM record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	vm, err := m.store.GetVM(ctx, id)
	if err != nil {
		return err
	}
	if vm.Status != models.VMStatusStopped && vm.Status != models.VMStatusError {
		return fmt.Errorf("cannot delete VM %s while %s", vm.Name, vm.Status)
	}

	if err := m.store.DeleteVMGuarded(ctx, id, vm.Status); err != nil {
		return fmt.Errorf("failed to delete VM %s: %w", vm.Name, err)
	}

	m.logger.Info("VM deleted", "vm_id", vm.ID, "name", vm.Name)
	return nil
}
