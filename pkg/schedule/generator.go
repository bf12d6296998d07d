// Package schedule generates amortized repayment schedules from loan terms.
// Generation is deterministic: the reference date is injected rather than
// read from the wall clock.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/models"
	"github.com/mikehongyuanfan/lianfund/pkg/money"
)

var (
	one           = decimal.NewFromInt(1)
	monthsPerYear = decimal.NewFromInt(12)
)

// Generate builds the ordered installment schedule for the given loan terms.
// Only monthly amortization is defined; other frequencies are rejected until
// their formulas are specified. The first installment falls due one month
// after the settlement date (today when no settlement date is set), and the
// last installment absorbs the rounding residue so the schedule sums to the
// exact amortized total to the cent.
func Generate(loan models.LoanTerms, today time.Time) ([]*models.RepaymentInstallment, error) {
	if !loan.LoanAmount.IsPositive() {
		return nil, fmt.Errorf("%w: loan_amount must be positive", models.ErrInvalidLoanTerms)
	}
	if loan.LoanTermMonths <= 0 {
		return nil, fmt.Errorf("%w: loan_term must be positive", models.ErrInvalidLoanTerms)
	}
	if loan.RepaymentFrequency != models.FrequencyMonthly {
		return nil, fmt.Errorf("%w: repayment frequency %q is not supported",
			models.ErrInvalidLoanTerms, loan.RepaymentFrequency)
	}

	term := loan.LoanTermMonths
	termDec := decimal.NewFromInt(int64(term))

	// Annual percent rate -> monthly fractional rate. A missing rate means
	// an interest-free schedule (simple division of principal).
	monthlyRate := decimal.Zero
	if loan.InterestRate != nil {
		monthlyRate = money.RateFraction(*loan.InterestRate).Div(monthsPerYear)
	}

	var payment, exactTotal decimal.Decimal
	if monthlyRate.IsPositive() {
		// Standard annuity: P * i(1+i)^n / ((1+i)^n - 1).
		factor := one.Add(monthlyRate).Pow(termDec)
		payment = loan.LoanAmount.Mul(monthlyRate).Mul(factor).Div(factor.Sub(one))
		exactTotal = payment.Mul(termDec)
	} else {
		payment = loan.LoanAmount.Div(termDec)
		exactTotal = loan.LoanAmount
	}

	rounded := money.Round2(payment)

	settlement := startOfDay(today)
	if loan.EstimatedSettlementDate != nil {
		settlement = startOfDay(*loan.EstimatedSettlementDate)
	}

	now := time.Now().UTC()
	installments := make([]*models.RepaymentInstallment, 0, term)
	for i := 1; i <= term; i++ {
		installments = append(installments, &models.RepaymentInstallment{
			ID:         uuid.New(),
			SequenceNo: i,
			Amount:     rounded,
			DueDate:    addMonthsClamped(settlement, i),
			Status:     models.StatusScheduled,
			CreatedAt:  now,
		})
	}

	// term * rounded payment can drift from the exact total by a few cents;
	// the final installment carries the difference.
	last := installments[term-1]
	last.Amount = money.Round2(exactTotal).Sub(rounded.Mul(decimal.NewFromInt(int64(term - 1))))

	return installments, nil
}

// addMonthsClamped advances a date by the given number of calendar months,
// clamping the day-of-month to the last valid day of the target month
// (Jan 31 + 1 month -> Feb 28/29, never Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
