// Package lending orchestrates the funding and repayment engine: it runs the
// pure calculations, persists their outputs, keeps the audit trail and notes,
// and serializes schedule regeneration per application.
package lending

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/funding"
	"github.com/mikehongyuanfan/lianfund/pkg/lifecycle"
	"github.com/mikehongyuanfan/lianfund/pkg/models"
	"github.com/mikehongyuanfan/lianfund/pkg/notify"
	"github.com/mikehongyuanfan/lianfund/pkg/schedule"
	"github.com/mikehongyuanfan/lianfund/pkg/store"
)

// Service is the entry point used by the request-handling layer and the
// sweep scheduler.
type Service struct {
	storage store.Storage
	tracker *lifecycle.Tracker

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-application regeneration locks
}

// NewService creates a Service over the given storage and dispatcher.
// sweepWorkers caps the escalation sweep's application-level concurrency.
func NewService(s store.Storage, d notify.Dispatcher, sweepWorkers int) *Service {
	return &Service{
		storage: s,
		tracker: lifecycle.NewTracker(s, d, sweepWorkers),
		locks:   make(map[string]*sync.Mutex),
	}
}

// ComputeFunding runs the fee calculation for an application and appends the
// result to the immutable audit trail. The calculation itself is pure; all
// persistence happens here.
func (s *Service) ComputeFunding(applicationID string, loan models.LoanTerms, in models.FundingCalculationInput, user string) (*models.FundingCalculationHistoryRecord, error) {
	result, err := funding.Compute(loan, in)
	if err != nil {
		return nil, fmt.Errorf("compute funding for %s: %w", applicationID, err)
	}

	rec := &models.FundingCalculationHistoryRecord{
		ID:                uuid.New(),
		ApplicationID:     applicationID,
		CalculationInput:  in,
		CalculationResult: result,
		CreatedBy:         user,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.storage.AppendFundingHistory(rec); err != nil {
		return nil, fmt.Errorf("persist funding history for %s: %w", applicationID, err)
	}

	s.addNote(applicationID, user, fmt.Sprintf(
		"Funding calculation performed: total fees $%s, funds available $%s on a $%s loan",
		result.TotalFees.StringFixed(2), result.FundsAvailable.StringFixed(2), loan.LoanAmount.StringFixed(2)))

	return rec, nil
}

// FundingHistory returns an application's audit trail, newest first.
func (s *Service) FundingHistory(applicationID string) ([]*models.FundingCalculationHistoryRecord, error) {
	return s.storage.ListFundingHistory(applicationID)
}

// GenerateSchedule builds and persists the repayment schedule for an
// application, replacing any pending installments. Regeneration for a single
// application is serialized; a concurrent attempt fails fast with
// ErrRegenerationConflict so the caller can retry.
func (s *Service) GenerateSchedule(applicationID string, loan models.LoanTerms, today time.Time, user string) ([]*models.RepaymentInstallment, error) {
	lock := s.regenLock(applicationID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("application %s: %w", applicationID, models.ErrRegenerationConflict)
	}
	defer lock.Unlock()

	installments, err := schedule.Generate(loan, today)
	if err != nil {
		return nil, fmt.Errorf("generate schedule for %s: %w", applicationID, err)
	}
	for _, inst := range installments {
		inst.ApplicationID = applicationID
		inst.CreatedBy = user
	}

	if err := s.storage.ReplaceSchedule(applicationID, installments); err != nil {
		return nil, fmt.Errorf("persist schedule for %s: %w", applicationID, err)
	}

	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Amount)
	}
	if err := s.storage.AppendLedgerEntry(&models.LedgerEntry{
		ID:              uuid.New(),
		ApplicationID:   applicationID,
		TransactionType: models.LedgerRepaymentScheduled,
		Amount:          total,
		Description: fmt.Sprintf("Repayment schedule generated: %d installments totalling $%s",
			len(installments), total.StringFixed(2)),
		CreatedBy: user,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("[lending] WARNING: ledger entry for schedule of %s failed: %v", applicationID, err)
	}

	s.addNote(applicationID, user, fmt.Sprintf(
		"Repayment schedule generated: %d monthly installments of $%s (final installment $%s)",
		len(installments), installments[0].Amount.StringFixed(2),
		installments[len(installments)-1].Amount.StringFixed(2)))

	return installments, nil
}

// Repayments lists an application's installments in sequence order.
func (s *Service) Repayments(applicationID string) ([]*models.RepaymentInstallment, error) {
	return s.storage.ListInstallmentsForApplication(applicationID)
}

// RecordPayment records a payment against an installment. The installment
// becomes paid when the payment covers the full amount, partial otherwise.
// Escalation flags are left untouched; once paid the installment is terminal
// and the sweep skips it.
func (s *Service) RecordPayment(installmentID uuid.UUID, amount decimal.Decimal, paidDate time.Time, user string) (*models.RepaymentInstallment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", models.ErrInvalidLoanTerms)
	}

	inst, err := s.storage.GetInstallment(installmentID)
	if err != nil {
		return nil, err
	}
	if inst.Status == models.StatusPaid {
		return nil, fmt.Errorf("installment %s is already paid: %w", installmentID, models.ErrInvalidCalculationState)
	}

	status := models.StatusPaid
	if amount.LessThan(inst.Amount) {
		status = models.StatusPartial
	}
	if err := s.storage.UpdateInstallmentPayment(installmentID, status, amount, paidDate); err != nil {
		return nil, fmt.Errorf("record payment on %s: %w", installmentID, err)
	}

	if err := s.storage.AppendLedgerEntry(&models.LedgerEntry{
		ID:              uuid.New(),
		ApplicationID:   inst.ApplicationID,
		TransactionType: models.LedgerRepaymentReceived,
		Amount:          amount,
		Description: fmt.Sprintf("Repayment received: $%s against installment %d ($%s due %s)",
			amount.StringFixed(2), inst.SequenceNo, inst.Amount.StringFixed(2), inst.DueDate.Format("02/01/2006")),
		RelatedRepaymentID: &inst.ID,
		CreatedBy:          user,
		CreatedAt:          time.Now().UTC(),
	}); err != nil {
		log.Printf("[lending] WARNING: ledger entry for payment on %s failed: %v", installmentID, err)
	}

	return s.storage.GetInstallment(installmentID)
}

// RunEscalationSweep runs one reminder/escalation sweep for the injected
// reference date. Intended to be invoked daily by a scheduler.
func (s *Service) RunEscalationSweep(ctx context.Context, today time.Time) (*lifecycle.SweepResult, error) {
	return s.tracker.RunSweep(ctx, today)
}

// Notes lists an application's notes, newest first.
func (s *Service) Notes(applicationID string) ([]*models.Note, error) {
	return s.storage.ListNotesForApplication(applicationID)
}

// Ledger lists an application's ledger entries, newest first.
func (s *Service) Ledger(applicationID string) ([]*models.LedgerEntry, error) {
	return s.storage.ListLedgerForApplication(applicationID)
}

// addNote writes a human-readable note; note failures are logged, never
// surfaced, since the primary record is already persisted.
func (s *Service) addNote(applicationID, user, content string) {
	err := s.storage.CreateNote(&models.Note{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		Content:       content,
		CreatedBy:     user,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[lending] WARNING: note for %s failed: %v", applicationID, err)
	}
}

func (s *Service) regenLock(applicationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[applicationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[applicationID] = lock
	}
	return lock
}
