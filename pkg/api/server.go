// Package api exposes the funding and repayment engine over HTTP. The
// surface is deliberately thin: decode, call the lending service, encode.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mikehongyuanfan/lianfund/pkg/lending"
	"github.com/mikehongyuanfan/lianfund/pkg/models"
)

const dateLayout = "2006-01-02"

// Server holds the lending service.
type Server struct {
	svc *lending.Service
}

func NewServer(svc *lending.Service) *Server {
	return &Server{svc: svc}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/applications/{id}/funding-calculation", s.fundingCalculationHandler).Methods("POST")
	router.HandleFunc("/applications/{id}/funding-calculation-history", s.fundingHistoryHandler).Methods("GET")
	router.HandleFunc("/applications/{id}/repayment-schedule", s.generateScheduleHandler).Methods("POST")
	router.HandleFunc("/applications/{id}/repayments", s.listRepaymentsHandler).Methods("GET")
	router.HandleFunc("/applications/{id}/notes", s.listNotesHandler).Methods("GET")
	router.HandleFunc("/applications/{id}/ledger", s.listLedgerHandler).Methods("GET")
	router.HandleFunc("/repayments/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/sweep", s.runSweepHandler).Methods("POST")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidLoanTerms), errors.Is(err, models.ErrMissingRequiredField):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrRegenerationConflict), errors.Is(err, models.ErrInvalidCalculationState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("[api] Error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) fundingCalculationHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := mux.Vars(r)["id"]

	var req struct {
		LoanTerms models.LoanTerms               `json:"loan_terms"`
		Input     models.FundingCalculationInput `json:"calculation_input"`
		User      string                         `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := s.svc.ComputeFunding(applicationID, req.LoanTerms, req.Input, req.User)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":            "Funding calculation completed successfully",
		"calculation_result": rec.CalculationResult,
		"history_id":         rec.ID,
	})
}

func (s *Server) fundingHistoryHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := mux.Vars(r)["id"]

	history, err := s.svc.FundingHistory(applicationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []*models.FundingCalculationHistoryRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) generateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := mux.Vars(r)["id"]

	var req struct {
		LoanTerms models.LoanTerms `json:"loan_terms"`
		User      string           `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	installments, err := s.svc.GenerateSchedule(applicationID, req.LoanTerms, time.Now().UTC(), req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, installments)
}

// repaymentView decorates an installment with its derived display status.
type repaymentView struct {
	*models.RepaymentInstallment
	DisplayStatus models.InstallmentStatus `json:"display_status"`
}

func (s *Server) listRepaymentsHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := mux.Vars(r)["id"]

	installments, err := s.svc.Repayments(applicationID)
	if err != nil {
		writeError(w, err)
		return
	}

	today := time.Now().UTC()
	views := make([]repaymentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, repaymentView{
			RepaymentInstallment: inst,
			DisplayStatus:        inst.DisplayStatus(today),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	installmentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid installment ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		PaidDate string          `json:"paid_date"`
		User     string          `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	paidDate := time.Now().UTC()
	if req.PaidDate != "" {
		paidDate, err = time.ParseInLocation(dateLayout, req.PaidDate, time.UTC)
		if err != nil {
			http.Error(w, "Invalid paid_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	inst, err := s.svc.RecordPayment(installmentID, req.Amount, paidDate, req.User)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) listNotesHandler(w http.ResponseWriter, r *http.Request) {
	notes, err := s.svc.Notes(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) listLedgerHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Ledger(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) runSweepHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Today string `json:"today"`
	}
	// An empty body means "sweep for today".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	today := time.Now().UTC()
	if req.Today != "" {
		var err error
		today, err = time.ParseInLocation(dateLayout, req.Today, time.UTC)
		if err != nil {
			http.Error(w, "Invalid today, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	result, err := s.svc.RunEscalationSweep(r.Context(), today)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
