package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepaymentFrequency is how often scheduled repayments fall due.
type RepaymentFrequency string

const (
	FrequencyWeekly      RepaymentFrequency = "weekly"
	FrequencyFortnightly RepaymentFrequency = "fortnightly"
	FrequencyMonthly     RepaymentFrequency = "monthly"
	FrequencyQuarterly   RepaymentFrequency = "quarterly"
	FrequencyAnnually    RepaymentFrequency = "annually"
)

// InstallmentStatus tracks the payment state of a scheduled repayment.
// "missed" is derived for display (past due and unpaid), never persisted.
type InstallmentStatus string

const (
	StatusScheduled InstallmentStatus = "scheduled"
	StatusPaid      InstallmentStatus = "paid"
	StatusPartial   InstallmentStatus = "partial"
	StatusMissed    InstallmentStatus = "missed"
)

// LoanTerms are the manually entered terms of a loan application. They are
// owned by the surrounding CRM's Application aggregate; this engine only
// reads them.
type LoanTerms struct {
	LoanAmount              decimal.Decimal    `json:"loan_amount"`
	LoanTermMonths          int                `json:"loan_term"`               // months
	InterestRate            *decimal.Decimal   `json:"interest_rate,omitempty"` // annual percent
	RepaymentFrequency      RepaymentFrequency `json:"repayment_frequency"`
	EstimatedSettlementDate *time.Time         `json:"estimated_settlement_date,omitempty"`
}

// FundingCalculationInput is the set of fee rates and flat fees entered for a
// funding calculation. It is a transient request value, never mutated after
// construction.
type FundingCalculationInput struct {
	EstablishmentFeeRate decimal.Decimal `json:"establishment_fee_rate"` // percent
	MonthlyLineFeeRate   decimal.Decimal `json:"monthly_line_fee_rate"`  // percent
	BrokerageFeeRate     decimal.Decimal `json:"brokerage_fee_rate"`     // percent
	CappedInterestMonths int             `json:"capped_interest_months"`
	ApplicationFee       decimal.Decimal `json:"application_fee"`
	DueDiligenceFee      decimal.Decimal `json:"due_diligence_fee"`
	LegalFeeBeforeGST    decimal.Decimal `json:"legal_fee_before_gst"`
	ValuationFee         decimal.Decimal `json:"valuation_fee"`
	MonthlyAccountFee    decimal.Decimal `json:"monthly_account_fee"`
	WorkingFee           decimal.Decimal `json:"working_fee"`
}

// FundingCalculationResult is the full fee breakdown derived from LoanTerms
// and a FundingCalculationInput. It has no identity of its own; it is always
// stored alongside the input that produced it.
type FundingCalculationResult struct {
	EstablishmentFee  decimal.Decimal `json:"establishment_fee"`
	CappedInterest    decimal.Decimal `json:"capped_interest"`
	LineFee           decimal.Decimal `json:"line_fee"`
	BrokerageFee      decimal.Decimal `json:"brokerage_fee"`
	LegalFee          decimal.Decimal `json:"legal_fee"`
	ApplicationFee    decimal.Decimal `json:"application_fee"`
	DueDiligenceFee   decimal.Decimal `json:"due_diligence_fee"`
	ValuationFee      decimal.Decimal `json:"valuation_fee"`
	MonthlyAccountFee decimal.Decimal `json:"monthly_account_fee"`
	WorkingFee        decimal.Decimal `json:"working_fee"`
	TotalFees         decimal.Decimal `json:"total_fees"`
	FundsAvailable    decimal.Decimal `json:"funds_available"`
}

// FundingCalculationHistoryRecord is one immutable entry in an application's
// funding audit trail. Once written it is never updated or deleted; the most
// recent record is the application's current funding result.
type FundingCalculationHistoryRecord struct {
	ID                uuid.UUID                `json:"id"`
	ApplicationID     string                   `json:"application_id"`
	CalculationInput  FundingCalculationInput  `json:"calculation_input"`
	CalculationResult FundingCalculationResult `json:"calculation_result"`
	CreatedBy         string                   `json:"created_by"`
	CreatedAt         time.Time                `json:"created_at"`
}

// EscalationFlag names one of the four one-way notification latches on a
// repayment installment.
type EscalationFlag string

const (
	FlagReminderSent     EscalationFlag = "reminder_sent"
	FlagOverdue3DaySent  EscalationFlag = "overdue_3_day_sent"
	FlagOverdue7DaySent  EscalationFlag = "overdue_7_day_sent"
	FlagOverdue10DaySent EscalationFlag = "overdue_10_day_sent"
)

// RepaymentInstallment is one scheduled repayment of a loan. The four
// escalation flags are one-way latches: they only move false -> true while
// the installment is unpaid, and are preserved as historical fact after
// payment.
type RepaymentInstallment struct {
	ID            uuid.UUID         `json:"id"`
	ApplicationID string            `json:"application_id"`
	SequenceNo    int               `json:"sequence_no"`
	Amount        decimal.Decimal   `json:"amount"`
	DueDate       time.Time         `json:"due_date"`
	Status        InstallmentStatus `json:"status"`
	PaidDate      *time.Time        `json:"paid_date,omitempty"`
	PaymentAmount *decimal.Decimal  `json:"payment_amount,omitempty"`

	ReminderSent     bool `json:"reminder_sent"`
	Overdue3DaySent  bool `json:"overdue_3_day_sent"`
	Overdue7DaySent  bool `json:"overdue_7_day_sent"`
	Overdue10DaySent bool `json:"overdue_10_day_sent"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FlagSet reports whether the given escalation latch is already set.
func (r *RepaymentInstallment) FlagSet(flag EscalationFlag) bool {
	switch flag {
	case FlagReminderSent:
		return r.ReminderSent
	case FlagOverdue3DaySent:
		return r.Overdue3DaySent
	case FlagOverdue7DaySent:
		return r.Overdue7DaySent
	case FlagOverdue10DaySent:
		return r.Overdue10DaySent
	}
	return false
}

// DisplayStatus returns the status as shown to users: an unpaid installment
// past its due date reads as "missed" even though the stored status is still
// "scheduled".
func (r *RepaymentInstallment) DisplayStatus(today time.Time) InstallmentStatus {
	if r.Status == StatusScheduled && r.DueDate.Before(today) {
		return StatusMissed
	}
	return r.Status
}

// Note is a human-readable annotation on an application, written alongside
// funding calculations, schedule generation and payment recording.
type Note struct {
	ID            uuid.UUID `json:"id"`
	ApplicationID string    `json:"application_id"`
	Content       string    `json:"content"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerEntryType classifies financial ledger entries.
type LedgerEntryType string

const (
	LedgerRepaymentScheduled LedgerEntryType = "repayment_scheduled"
	LedgerRepaymentReceived  LedgerEntryType = "repayment_received"
)

// LedgerEntry is one row in an application's financial ledger.
type LedgerEntry struct {
	ID                 uuid.UUID       `json:"id"`
	ApplicationID      string          `json:"application_id"`
	TransactionType    LedgerEntryType `json:"transaction_type"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
	RelatedRepaymentID *uuid.UUID      `json:"related_repayment_id,omitempty"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
}
