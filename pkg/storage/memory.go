package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
)

// MemoryStore is an in-memory Store used by tests and local experiments.
// It mirrors the Postgres implementation's constraints: unique external ids,
// unique (system, date) daily records, one active alert per (rule, vm).
type MemoryStore struct {
	mu          sync.Mutex
	vms         map[string]*models.VirtualMachineRecord
	systems     map[string]*models.InformationSystem
	adjustments []*models.ResourceAdjustmentLogEntry
	daily       map[string]*models.DailyBillingRecord // system|date
	bills       map[string]*models.MonthlyBill        // account|year|month
	sequences   map[string]int                        // period -> next value
	samples     []models.MetricSample
	rules       map[string]*models.AlertRule
	instances   map[string]*models.AlertInstance

	// Writes counts every mutating call, so tests can assert that an
	// idempotent re-run touched nothing.
	Writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vms:       make(map[string]*models.VirtualMachineRecord),
		systems:   make(map[string]*models.InformationSystem),
		daily:     make(map[string]*models.DailyBillingRecord),
		bills:     make(map[string]*models.MonthlyBill),
		sequences: make(map[string]int),
		rules:     make(map[string]*models.AlertRule),
		instances: make(map[string]*models.AlertInstance),
	}
}

// AddSystem seeds a system row (tests only; systems are managed by the
// out-of-scope admin layer in production).
func (s *MemoryStore) AddSystem(sys *models.InformationSystem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sys
	s.systems[sys.ID] = &cp
}

// AddRule seeds an alert rule row (tests only).
func (s *MemoryStore) AddRule(r *models.AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rules[r.ID] = &cp
}

func copyVM(vm *models.VirtualMachineRecord) *models.VirtualMachineRecord {
	cp := *vm
	if vm.LastStartAt != nil {
		t := *vm.LastStartAt
		cp.LastStartAt = &t
	}
	if vm.LastStopAt != nil {
		t := *vm.LastStopAt
		cp.LastStopAt = &t
	}
	return &cp
}

func (s *MemoryStore) GetVM(ctx context.Context, id string) (*models.VirtualMachineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyVM(vm), nil
}

func (s *MemoryStore) GetVMByExternalID(ctx context.Context, externalID string) (*models.VirtualMachineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vm := range s.vms {
		if vm.ExternalID == externalID {
			return copyVM(vm), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) listVMs(filter func(*models.VirtualMachineRecord) bool) []*models.VirtualMachineRecord {
	var out []*models.VirtualMachineRecord
	for _, vm := range s.vms {
		if filter(vm) {
			out = append(out, copyVM(vm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MemoryStore) ListTrackedVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listVMs(func(vm *models.VirtualMachineRecord) bool { return vm.ExternalID != "" }), nil
}

func (s *MemoryStore) ListVMsBySystem(ctx context.Context, systemID string) ([]*models.VirtualMachineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listVMs(func(vm *models.VirtualMachineRecord) bool { return vm.SystemID == systemID }), nil
}

func (s *MemoryStore) ListRunningVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listVMs(func(vm *models.VirtualMachineRecord) bool { return vm.Status == models.VMStatusRunning }), nil
}

func (s *MemoryStore) CreateVM(ctx context.Context, vm *models.VirtualMachineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vm.ID == "" {
		vm.ID = uuid.New().String()
	}
	now := time.Now()
	if vm.CreatedAt.IsZero() {
		vm.CreatedAt = now
	}
	if vm.UpdatedAt.IsZero() {
		vm.UpdatedAt = now
	}
	if vm.ExternalID != "" {
		for _, existing := range s.vms {
			if existing.ExternalID == vm.ExternalID {
				return fmt.Errorf("duplicate external id %s", vm.ExternalID)
			}
		}
	}
	s.Writes++
	s.vms[vm.ID] = copyVM(vm)
	return nil
}

func (s *MemoryStore) UpdateVM(ctx context.Context, vm *models.VirtualMachineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vms[vm.ID]; !ok {
		return ErrNotFound
	}
	vm.UpdatedAt = time.Now()
	s.Writes++
	s.vms[vm.ID] = copyVM(vm)
	return nil
}

func (s *MemoryStore) DeleteVM(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vms[id]; !ok {
		return ErrNotFound
	}
	s.Writes++
	delete(s.vms, id)
	return nil
}

func (s *MemoryStore) UpdateVMStatusGuarded(ctx context.Context, id string, expect, target models.VMStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok {
		return ErrNotFound
	}
	if vm.Status != expect {
		return ErrConflict
	}
	vm.Status = target
	switch target {
	case models.VMStatusRunning:
		t := at
		vm.LastStartAt = &t
	case models.VMStatusStopped:
		t := at
		vm.LastStopAt = &t
	}
	vm.UpdatedAt = at
	s.Writes++
	return nil
}

func (s *MemoryStore) UpdateVMSpecGuarded(ctx context.Context, id string, expect models.VMStatus, cpu, memoryGB, diskGB int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok {
		return ErrNotFound
	}
	if vm.Status != expect {
		return ErrConflict
	}
	vm.CPUCores = cpu
	vm.MemoryGB = memoryGB
	vm.DiskGB = diskGB
	vm.UpdatedAt = time.Now()
	s.Writes++
	return nil
}

func (s *MemoryStore) DeleteVMGuarded(ctx context.Context, id string, expect models.VMStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok {
		return ErrNotFound
	}
	if vm.Status != expect {
		return ErrConflict
	}
	s.Writes++
	delete(s.vms, id)
	return nil
}

func (s *MemoryStore) GetSystem(ctx context.Context, id string) (*models.InformationSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sys, ok := s.systems[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sys
	return &cp, nil
}

func (s *MemoryStore) ListSystems(ctx context.Context) ([]*models.InformationSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.InformationSystem
	for _, sys := range s.systems {
		cp := *sys
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateSystemTotals(ctx context.Context, systemID string, totals models.ResourceTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sys, ok := s.systems[systemID]
	if !ok {
		return ErrNotFound
	}
	sys.Totals = totals
	sys.UpdatedAt = time.Now()
	s.Writes++
	return nil
}

func (s *MemoryStore) AppendAdjustment(ctx context.Context, entry *models.ResourceAdjustmentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	s.Writes++
	s.adjustments = append(s.adjustments, &cp)
	return nil
}

func (s *MemoryStore) ListAdjustments(ctx context.Context, systemID string) ([]*models.ResourceAdjustmentLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ResourceAdjustmentLogEntry
	for _, e := range s.adjustments {
		if e.SystemID == systemID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func dailyKey(systemID string, date time.Time) string {
	return systemID + "|" + models.DateOnly(date).Format("2006-01-02")
}

func (s *MemoryStore) DailyRecordExists(ctx context.Context, systemID string, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.daily[dailyKey(systemID, date)]
	return ok, nil
}

func (s *MemoryStore) CreateDailyRecord(ctx context.Context, rec *models.DailyBillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dailyKey(rec.SystemID, rec.BillingDate)
	if _, ok := s.daily[key]; ok {
		return fmt.Errorf("duplicate daily record for %s", key)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	cp.BillingDate = models.DateOnly(rec.BillingDate)
	s.Writes++
	s.daily[key] = &cp
	return nil
}

func (s *MemoryStore) SumFinalAmounts(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fromD, toD := models.DateOnly(from), models.DateOnly(to)
	total := decimal.Zero
	for _, rec := range s.daily {
		sys, ok := s.systems[rec.SystemID]
		if !ok || sys.BillingAccountID != accountID {
			continue
		}
		if rec.BillingDate.Before(fromD) || rec.BillingDate.After(toD) {
			continue
		}
		total = total.Add(rec.FinalAmount)
	}
	return total, nil
}

func billKey(accountID string, year int, month time.Month) string {
	return fmt.Sprintf("%s|%04d|%02d", accountID, year, int(month))
}

func (s *MemoryStore) GetBill(ctx context.Context, accountID string, year int, month time.Month) (*models.MonthlyBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bill, ok := s.bills[billKey(accountID, year, month)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *bill
	return &cp, nil
}

func (s *MemoryStore) CreateBill(ctx context.Context, bill *models.MonthlyBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := billKey(bill.BillingAccountID, bill.Year, bill.Month)
	if _, ok := s.bills[key]; ok {
		return fmt.Errorf("duplicate bill for %s", key)
	}
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	now := time.Now()
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now
	}
	bill.UpdatedAt = now

	period := fmt.Sprintf("%04d%02d", bill.Year, int(bill.Month))
	seq := s.sequences[period]
	if seq == 0 {
		seq = 1
	}
	s.sequences[period] = seq + 1
	bill.BillNumber = fmt.Sprintf("INV-%s-%04d", period, seq)

	cp := *bill
	s.Writes++
	s.bills[key] = &cp
	return nil
}

func (s *MemoryStore) UpdateBill(ctx context.Context, bill *models.MonthlyBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := billKey(bill.BillingAccountID, bill.Year, bill.Month)
	existing, ok := s.bills[key]
	if !ok {
		return ErrNotFound
	}
	bill.BillNumber = existing.BillNumber
	bill.UpdatedAt = time.Now()
	cp := *bill
	s.Writes++
	s.bills[key] = &cp
	return nil
}

func (s *MemoryStore) AppendMetricSample(ctx context.Context, sample *models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	s.samples = append(s.samples, *sample)
	return nil
}

func (s *MemoryStore) ListSamplesSince(ctx context.Context, vmID string, since time.Time) ([]models.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MetricSample
	for _, m := range s.samples {
		if m.VMID == vmID && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) ListEnabledAlertRules(ctx context.Context) ([]*models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range s.rules {
		if r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetActiveAlertInstance(ctx context.Context, ruleID, vmID string) (*models.AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.RuleID == ruleID && inst.VMID == vmID && inst.Status == models.AlertActive {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateAlertInstance(ctx context.Context, inst *models.AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.Status == models.AlertActive {
		for _, existing := range s.instances {
			if existing.RuleID == inst.RuleID && existing.VMID == inst.VMID && existing.Status == models.AlertActive {
				return fmt.Errorf("active alert already exists for rule %s vm %s", inst.RuleID, inst.VMID)
			}
		}
	}
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.StartedAt.IsZero() {
		inst.StartedAt = time.Now()
	}
	cp := *inst
	s.Writes++
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MemoryStore) ResolveAlertInstance(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok || inst.Status != models.AlertActive {
		return ErrNotFound
	}
	inst.Status = models.AlertResolved
	t := at
	inst.ResolvedAt = &t
	s.Writes++
	return nil
}

// ActiveInstanceCount reports how many alert instances are currently active
// (tests only).
func (s *MemoryStore) ActiveInstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.instances {
		if inst.Status == models.AlertActive {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
