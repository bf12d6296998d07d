package funding

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikehongyuanfan/lianfund/pkg/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func standardInput() models.FundingCalculationInput {
	return models.FundingCalculationInput{
		EstablishmentFeeRate: dec("2.5"),
		MonthlyLineFeeRate:   dec("1.2"),
		BrokerageFeeRate:     dec("1.0"),
		CappedInterestMonths: 9,
		ApplicationFee:       dec("1000.00"),
		DueDiligenceFee:      dec("2500.00"),
		LegalFeeBeforeGST:    dec("3000.00"),
		ValuationFee:         dec("1500.00"),
		MonthlyAccountFee:    dec("100.00"),
		WorkingFee:           dec("500.00"),
	}
}

func TestCompute_StandardLoan(t *testing.T) {
	loan := models.LoanTerms{
		LoanAmount:         dec("1000000.00"),
		LoanTermMonths:     24,
		InterestRate:       decPtr("5.5"),
		RepaymentFrequency: models.FrequencyMonthly,
	}

	result, err := Compute(loan, standardInput())
	require.NoError(t, err)

	assert.True(t, result.EstablishmentFee.Equal(dec("25000.00")), "establishment fee: %s", result.EstablishmentFee)
	// 1,000,000 * 5.5% * 9/12
	assert.True(t, result.CappedInterest.Equal(dec("41250.00")), "capped interest: %s", result.CappedInterest)
	// 1,000,000 * 1.2% * 24 months
	assert.True(t, result.LineFee.Equal(dec("288000.00")), "line fee: %s", result.LineFee)
	assert.True(t, result.BrokerageFee.Equal(dec("10000.00")), "brokerage fee: %s", result.BrokerageFee)
	assert.True(t, result.LegalFee.Equal(dec("3300.00")), "legal fee: %s", result.LegalFee)

	assert.True(t, result.TotalFees.Equal(dec("373150.00")), "total fees: %s", result.TotalFees)
	assert.True(t, result.FundsAvailable.Equal(dec("626850.00")), "funds available: %s", result.FundsAvailable)
}

func TestCompute_EstablishmentFeeExample(t *testing.T) {
	loan := models.LoanTerms{
		LoanAmount:     dec("500000"),
		LoanTermMonths: 12,
		InterestRate:   decPtr("8.0"),
	}
	in := standardInput()
	in.EstablishmentFeeRate = dec("1.5")

	result, err := Compute(loan, in)
	require.NoError(t, err)
	assert.True(t, result.EstablishmentFee.Equal(dec("7500.00")), "got %s", result.EstablishmentFee)
}

func TestCompute_LegalFeeGST(t *testing.T) {
	loan := models.LoanTerms{LoanAmount: dec("100000"), LoanTermMonths: 6, InterestRate: decPtr("5")}
	in := standardInput()
	in.LegalFeeBeforeGST = dec("1000")

	result, err := Compute(loan, in)
	require.NoError(t, err)
	assert.True(t, result.LegalFee.Equal(dec("1100.00")), "got %s", result.LegalFee)
}

func TestCompute_TotalIsSumOfComponents(t *testing.T) {
	loan := models.LoanTerms{
		LoanAmount:     dec("750000.00"),
		LoanTermMonths: 18,
		InterestRate:   decPtr("7.25"),
	}
	result, err := Compute(loan, standardInput())
	require.NoError(t, err)

	sum := result.EstablishmentFee.
		Add(result.CappedInterest).
		Add(result.LineFee).
		Add(result.BrokerageFee).
		Add(result.LegalFee).
		Add(result.ApplicationFee).
		Add(result.DueDiligenceFee).
		Add(result.ValuationFee).
		Add(result.MonthlyAccountFee).
		Add(result.WorkingFee)

	assert.True(t, result.TotalFees.Equal(sum.Round(2)), "total %s != sum %s", result.TotalFees, sum)
	assert.True(t, result.FundsAvailable.Equal(loan.LoanAmount.Sub(result.TotalFees)),
		"funds available %s", result.FundsAvailable)
}

func TestCompute_MissingInterestRate(t *testing.T) {
	loan := models.LoanTerms{LoanAmount: dec("100000"), LoanTermMonths: 12}

	_, err := Compute(loan, standardInput())
	assert.ErrorIs(t, err, models.ErrMissingRequiredField)
}

func TestCompute_InvalidLoanTerms(t *testing.T) {
	cases := []struct {
		name string
		loan models.LoanTerms
		in   models.FundingCalculationInput
	}{
		{
			name: "zero loan amount",
			loan: models.LoanTerms{LoanAmount: decimal.Zero, LoanTermMonths: 12, InterestRate: decPtr("5")},
			in:   standardInput(),
		},
		{
			name: "negative loan amount",
			loan: models.LoanTerms{LoanAmount: dec("-5"), LoanTermMonths: 12, InterestRate: decPtr("5")},
			in:   standardInput(),
		},
		{
			name: "zero term",
			loan: models.LoanTerms{LoanAmount: dec("100000"), LoanTermMonths: 0, InterestRate: decPtr("5")},
			in:   standardInput(),
		},
		{
			name: "negative fee rate",
			loan: models.LoanTerms{LoanAmount: dec("100000"), LoanTermMonths: 12, InterestRate: decPtr("5")},
			in: func() models.FundingCalculationInput {
				in := standardInput()
				in.BrokerageFeeRate = dec("-1")
				return in
			}(),
		},
		{
			name: "capped months below one",
			loan: models.LoanTerms{LoanAmount: dec("100000"), LoanTermMonths: 12, InterestRate: decPtr("5")},
			in: func() models.FundingCalculationInput {
				in := standardInput()
				in.CappedInterestMonths = 0
				return in
			}(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(tc.loan, tc.in)
			assert.ErrorIs(t, err, models.ErrInvalidLoanTerms)
		})
	}
}
