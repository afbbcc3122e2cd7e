package metering

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSystem(id string, mode models.OperatingMode, discount string) *models.InformationSystem {
	return &models.InformationSystem{
		ID:               id,
		Name:             id,
		TenantID:         "tenant-1",
		BillingAccountID: "acct-1",
		OperatingMode:    mode,
		Totals:           models.ResourceTotals{CPUCores: 4, MemoryGB: 8, StorageGB: 200},
		Discount:         decimal.RequireFromString(discount),
	}
}

func TestDailyMeteringIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddSystem(newSystem("sys-1", models.ModeContinuous, "1.0"))
	engine := New(store, testLogger())
	ctx := context.Background()
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	summary, err := engine.RunDaily(ctx, date)
	if err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}
	if summary.Created != 1 || summary.Skipped != 0 {
		t.Fatalf("expected one record created, got %+v", summary)
	}

	summary, err = engine.RunDaily(ctx, date)
	if err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}
	if summary.Created != 0 || summary.Skipped != 1 {
		t.Errorf("second run for the same date must skip, got %+v", summary)
	}
}

func TestDailyMeteringCostMath(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddSystem(newSystem("sys-cont", models.ModeContinuous, "1.0"))
	store.AddSystem(newSystem("sys-biz", models.ModeBusinessHours, "0.8"))
	engine := New(store, testLogger())
	ctx := context.Background()
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	if _, err := engine.RunDaily(ctx, date); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}

	// rate = 0.05*4 + 0.01*8 + 0.0005*200 = 0.38/hour
	rate := decimal.RequireFromString("0.38")

	contSum, _ := store.SumFinalAmounts(ctx, "acct-1", date, date)
	// continuous: 0.38*24*1.0 = 9.12; business hours: 0.38*8*0.8 = 2.432
	want := rate.Mul(decimal.NewFromInt(24)).Add(rate.Mul(decimal.NewFromInt(8)).Mul(decimal.RequireFromString("0.8")))
	if !contSum.Equal(want) {
		t.Errorf("expected daily total %s, got %s", want, contSum)
	}
}

func TestDiscountCapturedAtCreation(t *testing.T) {
	store := storage.NewMemoryStore()
	sys := newSystem("sys-1", models.ModeContinuous, "0.5")
	store.AddSystem(sys)
	engine := New(store, testLogger())
	ctx := context.Background()

	day1 := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	if _, err := engine.RunDaily(ctx, day1); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}

	// The tenant's discount changes afterwards; the day-1 record keeps 0.5.
	sys.Discount = decimal.RequireFromString("0.9")
	store.AddSystem(sys)
	day2 := day1.AddDate(0, 0, 1)
	if _, err := engine.RunDaily(ctx, day2); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}

	base := decimal.RequireFromString("0.38").Mul(decimal.NewFromInt(24))
	day1Sum, _ := store.SumFinalAmounts(ctx, "acct-1", day1, day1)
	if !day1Sum.Equal(base.Mul(decimal.RequireFromString("0.5"))) {
		t.Errorf("day-1 record must keep the discount captured at creation, got %s", day1Sum)
	}
	day2Sum, _ := store.SumFinalAmounts(ctx, "acct-1", day2, day2)
	if !day2Sum.Equal(base.Mul(decimal.RequireFromString("0.9"))) {
		t.Errorf("day-2 record must use the new discount, got %s", day2Sum)
	}
}

func TestMonthToDateBoundary(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddSystem(newSystem("sys-1", models.ModeContinuous, "1.0"))
	engine := New(store, testLogger())
	ctx := context.Background()

	// Meter the first three days of August.
	for day := 1; day <= 3; day++ {
		date := time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC)
		if _, err := engine.RunDaily(ctx, date); err != nil {
			t.Fatalf("RunDaily failed: %v", err)
		}
	}

	firstDay := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	amount, err := engine.MonthToDate(ctx, "acct-1", firstDay)
	if err != nil {
		t.Fatalf("MonthToDate failed: %v", err)
	}
	if !amount.IsZero() {
		t.Errorf("month-to-date on the first period day must be zero, got %s", amount)
	}

	perDay := decimal.RequireFromString("0.38").Mul(decimal.NewFromInt(24))

	day3 := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	amount, err = engine.MonthToDate(ctx, "acct-1", day3)
	if err != nil {
		t.Fatalf("MonthToDate failed: %v", err)
	}
	if !amount.Equal(perDay.Mul(decimal.NewFromInt(2))) {
		t.Errorf("day-3 month-to-date must cover days 1-2, got %s", amount)
	}

	day10 := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	amount, err = engine.MonthToDate(ctx, "acct-1", day10)
	if err != nil {
		t.Fatalf("MonthToDate failed: %v", err)
	}
	if !amount.Equal(perDay.Mul(decimal.NewFromInt(3))) {
		t.Errorf("later query covers all three metered days, got %s", amount)
	}
}

func TestBillNumberAssignedOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddSystem(newSystem("sys-1", models.ModeContinuous, "1.0"))
	engine := New(store, testLogger())
	ctx := context.Background()

	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	if _, err := engine.RunDaily(ctx, date); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}

	bill, err := engine.BuildMonthlyBill(ctx, "acct-1", 2026, time.July)
	if err != nil {
		t.Fatalf("BuildMonthlyBill failed: %v", err)
	}
	if bill.BillNumber != "INV-202607-0001" {
		t.Errorf("expected INV-202607-0001, got %s", bill.BillNumber)
	}

	// More usage lands; rebuilding refreshes the total but not the number.
	if _, err := engine.RunDaily(ctx, date.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}
	rebuilt, err := engine.BuildMonthlyBill(ctx, "acct-1", 2026, time.July)
	if err != nil {
		t.Fatalf("BuildMonthlyBill failed: %v", err)
	}
	if rebuilt.BillNumber != bill.BillNumber {
		t.Errorf("bill number must never be regenerated: %s vs %s", rebuilt.BillNumber, bill.BillNumber)
	}
	if rebuilt.TotalAmount.Equal(bill.TotalAmount) {
		t.Error("expected the total to grow after another metered day")
	}
}

func TestRecordPayment(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddSystem(newSystem("sys-1", models.ModeContinuous, "1.0"))
	engine := New(store, testLogger())
	ctx := context.Background()

	if _, err := engine.RunDaily(ctx, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("RunDaily failed: %v", err)
	}
	bill, err := engine.BuildMonthlyBill(ctx, "acct-1", 2026, time.July)
	if err != nil {
		t.Fatalf("BuildMonthlyBill failed: %v", err)
	}

	half := bill.TotalAmount.Div(decimal.NewFromInt(2))
	bill, err = engine.RecordPayment(ctx, "acct-1", 2026, time.July, half)
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if bill.Status != models.BillStatusPartial {
		t.Errorf("expected partial status, got %s", bill.Status)
	}
	if !bill.Remaining().Equal(half) {
		t.Errorf("expected remaining %s, got %s", half, bill.Remaining())
	}

	bill, err = engine.RecordPayment(ctx, "acct-1", 2026, time.July, half)
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if bill.Status != models.BillStatusPaid {
		t.Errorf("expected paid status, got %s", bill.Status)
	}
	if !bill.PaymentProgress().Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100%% progress, got %s", bill.PaymentProgress())
	}

	if _, err := engine.RecordPayment(ctx, "acct-1", 2026, time.July, decimal.NewFromInt(-5)); err == nil {
		t.Error("negative payments must be rejected")
	}
}
