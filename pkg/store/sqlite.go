package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
// Escalation flags are separate columns so a partial sweep failure can never
// corrupt an unrelated flag.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS funding_history (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		calculation_input TEXT NOT NULL,
		calculation_result TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_funding_history_app
		ON funding_history(application_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		sequence_no INTEGER NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_date TEXT,
		payment_amount TEXT,
		reminder_sent INTEGER NOT NULL DEFAULT 0,
		overdue_3_day_sent INTEGER NOT NULL DEFAULT 0,
		overdue_7_day_sent INTEGER NOT NULL DEFAULT 0,
		overdue_10_day_sent INTEGER NOT NULL DEFAULT 0,
		created_by TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_installments_app
		ON installments(application_id, sequence_no);
	CREATE INDEX IF NOT EXISTS idx_installments_open
		ON installments(status, due_date);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		related_repayment_id TEXT,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendFundingHistory inserts a new immutable audit record. Input and result
// are stored as JSON snapshots so later schema changes cannot rewrite history.
func (s *SQLiteStore) AppendFundingHistory(rec *models.FundingCalculationHistoryRecord) error {
	inputJSON, err := json.Marshal(rec.CalculationInput)
	if err != nil {
		return fmt.Errorf("failed to marshal calculation input: %w", err)
	}
	resultJSON, err := json.Marshal(rec.CalculationResult)
	if err != nil {
		return fmt.Errorf("failed to marshal calculation result: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO funding_history (id, application_id, calculation_input, calculation_result, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.ApplicationID, string(inputJSON), string(resultJSON), rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append funding history: %w", err)
	}
	return nil
}

// ListFundingHistory retrieves all audit records for an application, newest first.
func (s *SQLiteStore) ListFundingHistory(applicationID string) ([]*models.FundingCalculationHistoryRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, application_id, calculation_input, calculation_result, created_by, created_at
		FROM funding_history WHERE application_id = ? ORDER BY created_at DESC, id DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list funding history: %w", err)
	}
	defer rows.Close()

	var records []*models.FundingCalculationHistoryRecord
	for rows.Next() {
		var rec models.FundingCalculationHistoryRecord
		var idStr, inputJSON, resultJSON string
		if err := rows.Scan(&idStr, &rec.ApplicationID, &inputJSON, &resultJSON, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan funding history row: %w", err)
		}
		rec.ID = uuid.MustParse(idStr)
		if err := json.Unmarshal([]byte(inputJSON), &rec.CalculationInput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal calculation input: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.CalculationResult); err != nil {
			return nil, fmt.Errorf("failed to unmarshal calculation result: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during funding history iteration: %w", err)
	}
	return records, nil
}

// ReplaceSchedule deletes all non-paid installments for the application and
// inserts the new schedule in a single transaction. Paid installments are
// preserved as historical fact.
func (s *SQLiteStore) ReplaceSchedule(applicationID string, installments []*models.RepaymentInstallment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM installments WHERE application_id = ? AND status != ?`,
		applicationID, string(models.StatusPaid),
	); err != nil {
		return fmt.Errorf("failed to clear pending installments: %w", err)
	}

	for _, inst := range installments {
		if _, err := tx.Exec(
			`INSERT INTO installments (id, application_id, sequence_no, amount, due_date, status,
				paid_date, payment_amount, reminder_sent, overdue_3_day_sent, overdue_7_day_sent, overdue_10_day_sent,
				created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID.String(), applicationID, inst.SequenceNo, inst.Amount.String(),
			inst.DueDate.Format(dateLayout), string(inst.Status),
			nullDate(inst.PaidDate), nullDecimal(inst.PaymentAmount),
			inst.ReminderSent, inst.Overdue3DaySent, inst.Overdue7DaySent, inst.Overdue10DaySent,
			inst.CreatedBy, inst.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.SequenceNo, err)
		}
	}

	return tx.Commit()
}

const installmentColumns = `id, application_id, sequence_no, amount, due_date, status,
	paid_date, payment_amount, reminder_sent, overdue_3_day_sent, overdue_7_day_sent, overdue_10_day_sent,
	created_by, created_at`

// GetInstallment retrieves an installment by its ID.
func (s *SQLiteStore) GetInstallment(id uuid.UUID) (*models.RepaymentInstallment, error) {
	row := s.db.QueryRow(
		`SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id.String(),
	)
	inst, err := scanInstallment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("installment %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

// ListInstallmentsForApplication retrieves an application's installments in
// sequence order.
func (s *SQLiteStore) ListInstallmentsForApplication(applicationID string) ([]*models.RepaymentInstallment, error) {
	rows, err := s.db.Query(
		`SELECT `+installmentColumns+` FROM installments WHERE application_id = ? ORDER BY sequence_no ASC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// ListOpenInstallments retrieves every installment not yet fully paid.
func (s *SQLiteStore) ListOpenInstallments() ([]*models.RepaymentInstallment, error) {
	rows, err := s.db.Query(
		`SELECT `+installmentColumns+` FROM installments WHERE status != ? ORDER BY application_id, sequence_no`,
		string(models.StatusPaid),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open installments: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// UpdateInstallmentPayment records a payment against an installment. The
// escalation flags are deliberately untouched: they remain historical fact.
func (s *SQLiteStore) UpdateInstallmentPayment(id uuid.UUID, status models.InstallmentStatus, paymentAmount decimal.Decimal, paidDate time.Time) error {
	result, err := s.db.Exec(
		`UPDATE installments SET status = ?, payment_amount = ?, paid_date = ? WHERE id = ?`,
		string(status), paymentAmount.String(), paidDate.Format(dateLayout), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("installment %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// LatchEscalationFlag performs the per-installment compare-and-set that makes
// sweep notifications fire at most once: the flag is set iff it was clear and
// the installment is still unpaid.
func (s *SQLiteStore) LatchEscalationFlag(id uuid.UUID, flag models.EscalationFlag) (bool, error) {
	column, err := flagColumn(flag)
	if err != nil {
		return false, err
	}

	result, err := s.db.Exec(
		`UPDATE installments SET `+column+` = 1 WHERE id = ? AND `+column+` = 0 AND status != ?`,
		id.String(), string(models.StatusPaid),
	)
	if err != nil {
		return false, fmt.Errorf("failed to latch %s: %w", flag, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected == 1, nil
}

// flagColumn whitelists flag names to columns; flags never reach SQL text
// unchecked.
func flagColumn(flag models.EscalationFlag) (string, error) {
	switch flag {
	case models.FlagReminderSent:
		return "reminder_sent", nil
	case models.FlagOverdue3DaySent:
		return "overdue_3_day_sent", nil
	case models.FlagOverdue7DaySent:
		return "overdue_7_day_sent", nil
	case models.FlagOverdue10DaySent:
		return "overdue_10_day_sent", nil
	}
	return "", fmt.Errorf("unknown escalation flag %q", flag)
}

// CreateNote inserts a new note.
func (s *SQLiteStore) CreateNote(note *models.Note) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (id, application_id, content, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		note.ID.String(), note.ApplicationID, note.Content, note.CreatedBy, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// ListNotesForApplication retrieves an application's notes, newest first.
func (s *SQLiteStore) ListNotesForApplication(applicationID string) ([]*models.Note, error) {
	rows, err := s.db.Query(
		`SELECT id, application_id, content, created_by, created_at
		FROM notes WHERE application_id = ? ORDER BY created_at DESC, id DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		var n models.Note
		var idStr string
		if err := rows.Scan(&idStr, &n.ApplicationID, &n.Content, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		n.ID = uuid.MustParse(idStr)
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during notes iteration: %w", err)
	}
	return notes, nil
}

// AppendLedgerEntry inserts a new ledger entry.
func (s *SQLiteStore) AppendLedgerEntry(entry *models.LedgerEntry) error {
	var relatedID interface{}
	if entry.RelatedRepaymentID != nil {
		relatedID = entry.RelatedRepaymentID.String()
	}
	_, err := s.db.Exec(
		`INSERT INTO ledger_entries (id, application_id, transaction_type, amount, description, related_repayment_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.ApplicationID, string(entry.TransactionType),
		entry.Amount.String(), entry.Description, relatedID, entry.CreatedBy, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ListLedgerForApplication retrieves an application's ledger entries, newest first.
func (s *SQLiteStore) ListLedgerForApplication(applicationID string) ([]*models.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, application_id, transaction_type, amount, description, related_repayment_id, created_by, created_at
		FROM ledger_entries WHERE application_id = ? ORDER BY created_at DESC, id DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var idStr, amountStr, typeStr string
		var relatedID sql.NullString
		if err := rows.Scan(&idStr, &e.ApplicationID, &typeStr, &amountStr, &e.Description, &relatedID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.ID = uuid.MustParse(idStr)
		e.TransactionType = models.LedgerEntryType(typeStr)
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ledger amount: %w", err)
		}
		e.Amount = amount
		if relatedID.Valid {
			rid := uuid.MustParse(relatedID.String)
			e.RelatedRepaymentID = &rid
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during ledger iteration: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstallment(row rowScanner) (*models.RepaymentInstallment, error) {
	var inst models.RepaymentInstallment
	var idStr, amountStr, dueDateStr, statusStr string
	var paidDateStr, paymentAmountStr, createdBy sql.NullString

	err := row.Scan(&idStr, &inst.ApplicationID, &inst.SequenceNo, &amountStr, &dueDateStr, &statusStr,
		&paidDateStr, &paymentAmountStr, &inst.ReminderSent, &inst.Overdue3DaySent, &inst.Overdue7DaySent,
		&inst.Overdue10DaySent, &createdBy, &inst.CreatedAt)
	if err != nil {
		return nil, err
	}

	inst.ID = uuid.MustParse(idStr)
	inst.Status = models.InstallmentStatus(statusStr)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse installment amount: %w", err)
	}
	inst.Amount = amount

	dueDate, err := time.ParseInLocation(dateLayout, dueDateStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date: %w", err)
	}
	inst.DueDate = dueDate

	if paidDateStr.Valid {
		paidDate, err := time.ParseInLocation(dateLayout, paidDateStr.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse paid date: %w", err)
		}
		inst.PaidDate = &paidDate
	}
	if paymentAmountStr.Valid {
		paymentAmount, err := decimal.NewFromString(paymentAmountStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse payment amount: %w", err)
		}
		inst.PaymentAmount = &paymentAmount
	}
	if createdBy.Valid {
		inst.CreatedBy = createdBy.String
	}
	return &inst, nil
}

func scanInstallments(rows *sql.Rows) ([]*models.RepaymentInstallment, error) {
	var installments []*models.RepaymentInstallment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during installments iteration: %w", err)
	}
	return installments, nil
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
