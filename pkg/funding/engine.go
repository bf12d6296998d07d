// Package funding computes the fee breakdown and funds-available figure for
// a loan application. Compute is a pure function: no I/O, no clock, no
// persistence. The orchestration layer is responsible for appending each
// successful result to the funding audit trail.
package funding

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/models"
	"github.com/mikehongyuanfan/lianfund/pkg/money"
)

var (
	twelve = decimal.NewFromInt(12)
)

// Compute derives a FundingCalculationResult from loan terms and a funding
// input. Every fee is rounded half-up to cents as it is computed; the total
// is rounded once more after summation. On any validation failure the zero
// result and a typed error are returned, never a partial breakdown.
func Compute(loan models.LoanTerms, in models.FundingCalculationInput) (models.FundingCalculationResult, error) {
	var out models.FundingCalculationResult

	if err := validate(loan, in); err != nil {
		return out, err
	}

	// Capped interest needs a real interest rate; a missing rate is an
	// input error, not a silent zero.
	if loan.InterestRate == nil {
		return out, fmt.Errorf("%w: interest_rate is required for capped interest", models.ErrMissingRequiredField)
	}

	months := decimal.NewFromInt(int64(in.CappedInterestMonths))
	term := decimal.NewFromInt(int64(loan.LoanTermMonths))

	out.EstablishmentFee = money.Percent(loan.LoanAmount, in.EstablishmentFeeRate)
	out.CappedInterest = money.Round2(
		loan.LoanAmount.Mul(money.RateFraction(*loan.InterestRate)).Mul(months).Div(twelve))
	out.LineFee = money.Round2(
		loan.LoanAmount.Mul(money.RateFraction(in.MonthlyLineFeeRate)).Mul(term))
	out.BrokerageFee = money.Percent(loan.LoanAmount, in.BrokerageFeeRate)
	out.LegalFee = money.WithGST(in.LegalFeeBeforeGST)

	// Pass-through fees, normalised to cents.
	out.ApplicationFee = money.Round2(in.ApplicationFee)
	out.DueDiligenceFee = money.Round2(in.DueDiligenceFee)
	out.ValuationFee = money.Round2(in.ValuationFee)
	out.MonthlyAccountFee = money.Round2(in.MonthlyAccountFee)
	out.WorkingFee = money.Round2(in.WorkingFee)

	components := []decimal.Decimal{
		out.EstablishmentFee,
		out.CappedInterest,
		out.LineFee,
		out.BrokerageFee,
		out.LegalFee,
		out.ApplicationFee,
		out.DueDiligenceFee,
		out.ValuationFee,
		out.MonthlyAccountFee,
		out.WorkingFee,
	}

	total := decimal.Zero
	for _, fee := range components {
		// Validated inputs cannot produce a negative fee; if one appears
		// the calculation state is corrupt and must not be returned.
		if fee.IsNegative() {
			return models.FundingCalculationResult{},
				fmt.Errorf("%w: negative fee component %s", models.ErrInvalidCalculationState, fee)
		}
		total = total.Add(fee)
	}

	out.TotalFees = money.Round2(total)
	out.FundsAvailable = loan.LoanAmount.Sub(out.TotalFees)

	return out, nil
}

func validate(loan models.LoanTerms, in models.FundingCalculationInput) error {
	if !loan.LoanAmount.IsPositive() {
		return fmt.Errorf("%w: loan_amount must be positive", models.ErrInvalidLoanTerms)
	}
	if loan.LoanTermMonths <= 0 {
		return fmt.Errorf("%w: loan_term must be positive", models.ErrInvalidLoanTerms)
	}
	if loan.InterestRate != nil {
		if loan.InterestRate.IsNegative() || loan.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: interest_rate must be between 0 and 100", models.ErrInvalidLoanTerms)
		}
	}
	if in.CappedInterestMonths < 1 {
		return fmt.Errorf("%w: capped_interest_months must be at least 1", models.ErrInvalidLoanTerms)
	}

	rates := map[string]decimal.Decimal{
		"establishment_fee_rate": in.EstablishmentFeeRate,
		"monthly_line_fee_rate":  in.MonthlyLineFeeRate,
		"brokerage_fee_rate":     in.BrokerageFeeRate,
		"application_fee":        in.ApplicationFee,
		"due_diligence_fee":      in.DueDiligenceFee,
		"legal_fee_before_gst":   in.LegalFeeBeforeGST,
		"valuation_fee":          in.ValuationFee,
		"monthly_account_fee":    in.MonthlyAccountFee,
		"working_fee":            in.WorkingFee,
	}
	for name, v := range rates {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", models.ErrInvalidLoanTerms, name)
		}
	}
	return nil
}
