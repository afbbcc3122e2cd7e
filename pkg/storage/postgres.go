package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

const vmColumns = `id, external_id, system_id, name, cpu_cores, memory_gb, disk_gb,
	status, ip_address, mac_address, availability_zone,
	last_start_at, last_stop_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVM(row rowScanner) (*models.VirtualMachineRecord, error) {
	var vm models.VirtualMachineRecord
	var externalID, ip, mac, az sql.NullString
	var lastStart, lastStop sql.NullTime

	err := row.Scan(
		&vm.ID, &externalID, &vm.SystemID, &vm.Name,
		&vm.CPUCores, &vm.MemoryGB, &vm.DiskGB,
		&vm.Status, &ip, &mac, &az,
		&lastStart, &lastStop, &vm.CreatedAt, &vm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	vm.ExternalID = externalID.String
	vm.IPAddress = ip.String
	vm.MACAddress = mac.String
	vm.AvailabilityZone = az.String
	if lastStart.Valid {
		t := lastStart.Time
		vm.LastStartAt = &t
	}
	if lastStop.Valid {
		t := lastStop.Time
		vm.LastStopAt = &t
	}

	return &vm, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// GetVM retrieves a VM record by id
func (s *PostgresStore) GetVM(ctx context.Context, id string) (*models.VirtualMachineRecord, error) {
	query := `SELECT ` + vmColumns + ` FROM virtual_machines WHERE id = $1`
	vm, err := scanVM(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return vm, err
}

// GetVMByExternalID retrieves a VM record by its remote reference
func (s *PostgresStore) GetVMByExternalID(ctx context.Context, externalID string) (*models.VirtualMachineRecord, error) {
	query := `SELECT ` + vmColumns + ` FROM virtual_machines WHERE external_id = $1`
	vm, err := scanVM(s.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return vm, err
}

func (s *PostgresStore) queryVMs(ctx context.Context, query string, args ...interface{}) ([]*models.VirtualMachineRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vms []*models.VirtualMachineRecord
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, err
		}
		vms = append(vms, vm)
	}

	return vms, rows.Err()
}

// ListTrackedVMs returns all VMs carrying a remote reference
func (s *PostgresStore) ListTrackedVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error) {
	query := `SELECT ` + vmColumns + ` FROM virtual_machines WHERE external_id IS NOT NULL ORDER BY name`
	return s.queryVMs(ctx, query)
}

// ListVMsBySystem returns all VMs owned by a system
func (s *PostgresStore) ListVMsBySystem(ctx context.Context, systemID string) ([]*models.VirtualMachineRecord, error) {
	query := `SELECT ` + vmColumns + ` FROM virtual_machines WHERE system_id = $1 ORDER BY name`
	return s.queryVMs(ctx, query, systemID)
}

// ListRunningVMs returns all VMs currently in running status
func (s *PostgresStore) ListRunningVMs(ctx context.Context) ([]*models.VirtualMachineRecord, error) {
	query := `SELECT ` + vmColumns + ` FROM virtual_machines WHERE status = $1 ORDER BY name`
	return s.queryVMs(ctx, query, models.VMStatusRunning)
}

// CreateVM inserts a new VM record
func (s *PostgresStore) CreateVM(ctx context.Context, vm *models.VirtualMachineRecord) error {
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

	query := `
		INSERT INTO virtual_machines (
			id, external_id, system_id, name, cpu_cores, memory_gb, disk_gb,
			status, ip_address, mac_address, availability_zone,
			last_start_at, last_stop_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.ExecContext(ctx, query,
		vm.ID, nullString(vm.ExternalID), vm.SystemID, vm.Name,
		vm.CPUCores, vm.MemoryGB, vm.DiskGB,
		vm.Status, nullString(vm.IPAddress), nullString(vm.MACAddress), nullString(vm.AvailabilityZone),
		nullTime(vm.LastStartAt), nullTime(vm.LastStopAt), vm.CreatedAt, vm.UpdatedAt,
	)

	return err
}

// UpdateVM rewrites a VM record's mutable fields
func (s *PostgresStore) UpdateVM(ctx context.Context, vm *models.VirtualMachineRecord) error {
	vm.UpdatedAt = time.Now()

	query := `
		UPDATE virtual_machines SET
			cpu_cores = $1, memory_gb = $2, disk_gb = $3, status = $4,
			ip_address = $5, mac_address = $6, availability_zone = $7,
			last_start_at = $8, last_stop_at = $9, updated_at = $10
		WHERE id = $11
	`

	result, err := s.db.ExecContext(ctx, query,
		vm.CPUCores, vm.MemoryGB, vm.DiskGB, vm.Status,
		nullString(vm.IPAddress), nullString(vm.MACAddress), nullString(vm.AvailabilityZone),
		nullTime(vm.LastStartAt), nullTime(vm.LastStopAt), vm.UpdatedAt, vm.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteVM removes a VM record
func (s *PostgresStore) DeleteVM(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM virtual_machines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVMStatusGuarded applies a manual status transition only if the row
// still holds the expected status. Transitions into running stamp the start
// time; transitions into stopped stamp the stop time.
func (s *PostgresStore) UpdateVMStatusGuarded(ctx context.Context, id string, expect, target models.VMStatus, at time.Time) error {
	query := `
		UPDATE virtual_machines SET
			status = $1,
			last_start_at = CASE WHEN $1 = 'running' THEN $2 ELSE last_start_at END,
			last_stop_at = CASE WHEN $1 = 'stopped' THEN $2 ELSE last_stop_at END,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	return s.guarded(ctx, id, query, target, at, id, expect)
}

// UpdateVMSpecGuarded resizes a VM only while it holds the expected status.
func (s *PostgresStore) UpdateVMSpecGuarded(ctx context.Context, id string, expect models.VMStatus, cpu, memoryGB, diskGB int) error {
	query := `
		UPDATE virtual_machines SET
			cpu_cores = $1, memory_gb = $2, disk_gb = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	return s.guarded(ctx, id, query, cpu, memoryGB, diskGB, time.Now(), id, expect)
}

// DeleteVMGuarded removes a VM only while it holds the expected status.
func (s *PostgresStore) DeleteVMGuarded(ctx context.Context, id string, expect models.VMStatus) error {
	query := `DELETE FROM virtual_machines WHERE id = $1 AND status = $2`
	return s.guarded(ctx, id, query, id, expect)
}

func (s *PostgresStore) guarded(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing row from a lost race.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM virtual_machines WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// GetSystem retrieves an information system by id
func (s *PostgresStore) GetSystem(ctx context.Context, id string) (*models.InformationSystem, error) {
	query := `
		SELECT id, name, tenant_id, billing_account_id, operating_mode,
			total_cpu_cores, total_memory_gb, total_storage_gb, discount, updated_at
		FROM information_systems WHERE id = $1
	`
	sys, err := scanSystem(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sys, err
}

func scanSystem(row rowScanner) (*models.InformationSystem, error) {
	var sys models.InformationSystem
	err := row.Scan(
		&sys.ID, &sys.Name, &sys.TenantID, &sys.BillingAccountID, &sys.OperatingMode,
		&sys.Totals.CPUCores, &sys.Totals.MemoryGB, &sys.Totals.StorageGB,
		&sys.Discount, &sys.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

// ListSystems returns all information systems
func (s *PostgresStore) ListSystems(ctx context.Context) ([]*models.InformationSystem, error) {
	query := `
		SELECT id, name, tenant_id, billing_account_id, operating_mode,
			total_cpu_cores, total_memory_gb, total_storage_gb, discount, updated_at
		FROM information_systems ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var systems []*models.InformationSystem
	for rows.Next() {
		sys, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		systems = append(systems, sys)
	}

	return systems, rows.Err()
}

// UpdateSystemTotals rewrites a system's cached aggregate
func (s *PostgresStore) UpdateSystemTotals(ctx context.Context, systemID string, totals models.ResourceTotals) error {
	query := `
		UPDATE information_systems SET
			total_cpu_cores = $1, total_memory_gb = $2, total_storage_gb = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		totals.CPUCores, totals.MemoryGB, totals.StorageGB, time.Now(), systemID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAdjustment writes one adjustment log entry
func (s *PostgresStore) AppendAdjustment(ctx context.Context, entry *models.ResourceAdjustmentLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO resource_adjustments (
			id, system_id, kind, old_cpu_cores, new_cpu_cores,
			old_memory_gb, new_memory_gb, old_storage_gb, new_storage_gb, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.SystemID, entry.Kind,
		entry.Old.CPUCores, entry.New.CPUCores,
		entry.Old.MemoryGB, entry.New.MemoryGB,
		entry.Old.StorageGB, entry.New.StorageGB,
		entry.CreatedAt,
	)

	return err
}

// ListAdjustments returns a system's adjustment history, newest first
func (s *PostgresStore) ListAdjustments(ctx context.Context, systemID string) ([]*models.ResourceAdjustmentLogEntry, error) {
	query := `
		SELECT id, system_id, kind, old_cpu_cores, new_cpu_cores,
			old_memory_gb, new_memory_gb, old_storage_gb, new_storage_gb, created_at
		FROM resource_adjustments
		WHERE system_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, systemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ResourceAdjustmentLogEntry
	for rows.Next() {
		var e models.ResourceAdjustmentLogEntry
		err := rows.Scan(
			&e.ID, &e.SystemID, &e.Kind,
			&e.Old.CPUCores, &e.New.CPUCores,
			&e.Old.MemoryGB, &e.New.MemoryGB,
			&e.Old.StorageGB, &e.New.StorageGB,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// DailyRecordExists is the idempotency guard for daily metering
func (s *PostgresStore) DailyRecordExists(ctx context.Context, systemID string, date time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM daily_billing_records WHERE system_id = $1 AND billing_date = $2)`,
		systemID, models.DateOnly(date)).Scan(&exists)
	return exists, err
}

// CreateDailyRecord inserts one daily billing record
func (s *PostgresStore) CreateDailyRecord(ctx context.Context, rec *models.DailyBillingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO daily_billing_records (
			id, system_id, billing_date, cpu_cores, memory_gb, storage_gb,
			running_hours, hourly_rate, raw_cost, discount, final_amount,
			processed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SystemID, models.DateOnly(rec.BillingDate),
		rec.CPUCores, rec.MemoryGB, rec.StorageGB,
		rec.RunningHrs, rec.HourlyRate, rec.RawCost, rec.Discount, rec.FinalAmount,
		rec.Processed, rec.CreatedAt,
	)

	return err
}

// SumFinalAmounts totals daily final amounts for an account's systems over
// an inclusive date range
func (s *PostgresStore) SumFinalAmounts(ctx context.Context, accountID string, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(d.final_amount), 0)
		FROM daily_billing_records d
		JOIN information_systems sys ON sys.id = d.system_id
		WHERE sys.billing_account_id = $1
			AND d.billing_date >= $2 AND d.billing_date <= $3
	`
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, query,
		accountID, models.DateOnly(from), models.DateOnly(to)).Scan(&total)
	return total, err
}

const billColumns = `id, billing_account_id, year, month, bill_number,
	total_amount, paid_amount, status, due_date, created_at, updated_at`

func scanBill(row rowScanner) (*models.MonthlyBill, error) {
	var b models.MonthlyBill
	var month int
	err := row.Scan(
		&b.ID, &b.BillingAccountID, &b.Year, &month, &b.BillNumber,
		&b.TotalAmount, &b.PaidAmount, &b.Status, &b.DueDate,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Month = time.Month(month)
	return &b, nil
}

// GetBill retrieves an account's bill for one period
func (s *PostgresStore) GetBill(ctx context.Context, accountID string, year int, month time.Month) (*models.MonthlyBill, error) {
	query := `SELECT ` + billColumns + ` FROM monthly_bills
		WHERE billing_account_id = $1 AND year = $2 AND month = $3`
	bill, err := scanBill(s.db.QueryRowContext(ctx, query, accountID, year, int(month)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return bill, err
}

// CreateBill inserts a bill and assigns its number from the per-period
// sequence. The number is generated exactly once; callers must not set it.
func (s *PostgresStore) CreateBill(ctx context.Context, bill *models.MonthlyBill) error {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	now := time.Now()
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = now
	}
	bill.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	period := fmt.Sprintf("%04d%02d", bill.Year, int(bill.Month))

	var seq int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bill_sequences (period, next_value) VALUES ($1, 2)
		ON CONFLICT (period) DO UPDATE SET next_value = bill_sequences.next_value + 1
		RETURNING next_value - 1
	`, period).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate bill sequence: %w", err)
	}

	bill.BillNumber = fmt.Sprintf("INV-%s-%04d", period, seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO monthly_bills (
			id, billing_account_id, year, month, bill_number,
			total_amount, paid_amount, status, due_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		bill.ID, bill.BillingAccountID, bill.Year, int(bill.Month), bill.BillNumber,
		bill.TotalAmount, bill.PaidAmount, bill.Status, bill.DueDate,
		bill.CreatedAt, bill.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateBill rewrites a bill's amounts and status. The bill number is never
// touched.
func (s *PostgresStore) UpdateBill(ctx context.Context, bill *models.MonthlyBill) error {
	bill.UpdatedAt = time.Now()

	query := `
		UPDATE monthly_bills SET
			total_amount = $1, paid_amount = $2, status = $3, due_date = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		bill.TotalAmount, bill.PaidAmount, bill.Status, bill.DueDate, bill.UpdatedAt, bill.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMetricSample writes one time-series observation
func (s *PostgresStore) AppendMetricSample(ctx context.Context, sample *models.MetricSample) error {
	query := `
		INSERT INTO metric_samples (
			vm_id, ts, cpu_percent, memory_percent, network_in_kbps, network_out_kbps
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		sample.VMID, sample.Timestamp,
		sample.CPUPercent, sample.MemPercent, sample.NetInKBps, sample.NetOutKBps,
	)
	return err
}

// ListSamplesSince returns a VM's samples at or after the given instant,
// oldest first
func (s *PostgresStore) ListSamplesSince(ctx context.Context, vmID string, since time.Time) ([]models.MetricSample, error) {
	query := `
		SELECT vm_id, ts, cpu_percent, memory_percent, network_in_kbps, network_out_kbps
		FROM metric_samples
		WHERE vm_id = $1 AND ts >= $2
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, vmID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		err := rows.Scan(&m.VMID, &m.Timestamp, &m.CPUPercent, &m.MemPercent, &m.NetInKBps, &m.NetOutKBps)
		if err != nil {
			return nil, err
		}
		samples = append(samples, m)
	}

	return samples, rows.Err()
}

// ListEnabledAlertRules returns all enabled rules
func (s *PostgresStore) ListEnabledAlertRules(ctx context.Context) ([]*models.AlertRule, error) {
	query := `
		SELECT id, name, metric_type, operator, threshold, duration_minutes,
			min_samples, enabled, vm_id, created_at
		FROM alert_rules
		WHERE enabled = TRUE
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var r models.AlertRule
		var vmID sql.NullString
		err := rows.Scan(
			&r.ID, &r.Name, &r.MetricType, &r.Operator, &r.Threshold,
			&r.DurationMin, &r.MinSamples, &r.Enabled, &vmID, &r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		r.VMID = vmID.String
		rules = append(rules, &r)
	}

	return rules, rows.Err()
}

// GetActiveAlertInstance returns the active instance for a (rule, vm) pair
func (s *PostgresStore) GetActiveAlertInstance(ctx context.Context, ruleID, vmID string) (*models.AlertInstance, error) {
	query := `
		SELECT id, rule_id, vm_id, value, message, status, started_at, resolved_at
		FROM alert_instances
		WHERE rule_id = $1 AND vm_id = $2 AND status = 'active'
	`
	var inst models.AlertInstance
	var resolvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, ruleID, vmID).Scan(
		&inst.ID, &inst.RuleID, &inst.VMID, &inst.Value, &inst.Message,
		&inst.Status, &inst.StartedAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inst.ResolvedAt = &t
	}
	return &inst, nil
}

// CreateAlertInstance inserts a new alert instance. The partial unique index
// on (rule_id, vm_id) keeps a second concurrent evaluator from duplicating
// an active alert.
func (s *PostgresStore) CreateAlertInstance(ctx context.Context, inst *models.AlertInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.StartedAt.IsZero() {
		inst.StartedAt = time.Now()
	}

	query := `
		INSERT INTO alert_instances (
			id, rule_id, vm_id, value, message, status, started_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		inst.ID, inst.RuleID, inst.VMID, inst.Value, inst.Message,
		inst.Status, inst.StartedAt, nullTime(inst.ResolvedAt),
	)
	return err
}

// ResolveAlertInstance marks an active instance resolved
func (s *PostgresStore) ResolveAlertInstance(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE alert_instances SET status = 'resolved', resolved_at = $1
		WHERE id = $2 AND status = 'active'
	`
	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
