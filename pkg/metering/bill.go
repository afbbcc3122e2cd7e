package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// MonthToDate returns the account's accumulated amount as of the query
// date: the sum of daily final amounts with billing dates in
// [period start, query date - 1 day]. On the first day of the period no
// days have elapsed and the result is exactly zero.
func (e *Engine) MonthToDate(ctx context.Context, accountID string, queryDate time.Time) (decimal.Decimal, error) {
	_, _, periodStart := models.PeriodOf(queryDate)
	queryDate = models.DateOnly(queryDate)

	if !queryDate.After(periodStart) {
		return decimal.Zero, nil
	}

	return e.store.SumFinalAmounts(ctx, accountID, periodStart, queryDate.AddDate(0, 0, -1))
}

// BuildMonthlyBill assembles (or refreshes) an account's bill for one
// calendar month from its daily records. The bill number is assigned by the
// store at first save and survives refreshes untouched.
func (e *Engine) BuildMonthlyBill(ctx context.Context, accountID string, year int, month time.Month) (*models.MonthlyBill, error) {
	periodStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, -1)

	total, err := e.store.SumFinalAmounts(ctx, accountID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily records: %w", err)
	}

	bill, err := e.store.GetBill(ctx, accountID, year, month)
	if errors.Is(err, storage.ErrNotFound) {
		bill = &models.MonthlyBill{
			BillingAccountID: accountID,
			Year:             year,
			Month:            month,
			TotalAmount:      total,
			PaidAmount:       decimal.Zero,
			Status:           models.BillStatusPending,
			// Due the 15th of the following month.
			DueDate: periodStart.AddDate(0, 1, 14),
		}
		if err := e.store.CreateBill(ctx, bill); err != nil {
			return nil, fmt.Errorf("failed to create bill: %w", err)
		}
		e.logger.Info("monthly bill created",
			"account_id", accountID, "bill_number", bill.BillNumber, "total", total.String())
		return bill, nil
	}
	if err != nil {
		return nil, err
	}

	// Refresh the total on an existing collectible bill; settled or
	// cancelled bills are left alone.
	if bill.Status == models.BillStatusPaid || bill.Status == models.BillStatusCancelled {
		return bill, nil
	}
	if bill.TotalAmount.Equal(total) {
		return bill, nil
	}
	bill.TotalAmount = total
	if err := e.store.UpdateBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("failed to update bill: %w", err)
	}
	return bill, nil
}

// RecordPayment applies a payment to a bill and moves its status to partial
// or paid accordingly.
func (e *Engine) RecordPayment(ctx context.Context, accountID string, year int, month time.Month, amount decimal.Decimal) (*models.MonthlyBill, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}

	bill, err := e.store.GetBill(ctx, accountID, year, month)
	if err != nil {
		return nil, err
	}
	if bill.Status == models.BillStatusCancelled {
		return nil, fmt.Errorf("bill %s is cancelled", bill.BillNumber)
	}

	bill.PaidAmount = bill.PaidAmount.Add(amount)
	if bill.PaidAmount.GreaterThanOrEqual(bill.TotalAmount) {
		bill.Status = models.BillStatusPaid
	} else {
		bill.Status = models.BillStatusPartial
	}

	if err := e.store.UpdateBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	e.logger.Info("payment recorded",
		"bill_number", bill.BillNumber, "amount", amount.String(), "status", bill.Status)
	return bill, nil
}
