package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/models"
)

// Storage defines the persistence operations for the funding audit trail,
// repayment schedules, notes and ledger entries.
type Storage interface {
	// AppendFundingHistory writes one immutable audit record. There is no
	// update or delete: the trail is append-only.
	AppendFundingHistory(rec *models.FundingCalculationHistoryRecord) error
	// ListFundingHistory returns an application's audit records newest
	// first; the first record is the current funding result.
	ListFundingHistory(applicationID string) ([]*models.FundingCalculationHistoryRecord, error)

	// ReplaceSchedule atomically replaces an application's pending
	// installments with a new schedule. Installments already paid are
	// never touched.
	ReplaceSchedule(applicationID string, installments []*models.RepaymentInstallment) error
	GetInstallment(id uuid.UUID) (*models.RepaymentInstallment, error)
	ListInstallmentsForApplication(applicationID string) ([]*models.RepaymentInstallment, error)
	// ListOpenInstallments returns all installments not yet fully paid,
	// across applications, for the escalation sweep.
	ListOpenInstallments() ([]*models.RepaymentInstallment, error)
	UpdateInstallmentPayment(id uuid.UUID, status models.InstallmentStatus, paymentAmount decimal.Decimal, paidDate time.Time) error
	// LatchEscalationFlag sets the named flag iff it is currently clear and
	// the installment is unpaid. Returns whether this call won the latch.
	LatchEscalationFlag(id uuid.UUID, flag models.EscalationFlag) (bool, error)

	CreateNote(note *models.Note) error
	ListNotesForApplication(applicationID string) ([]*models.Note, error)

	AppendLedgerEntry(entry *models.LedgerEntry) error
	ListLedgerForApplication(applicationID string) ([]*models.LedgerEntry, error)

	Close() error
}
