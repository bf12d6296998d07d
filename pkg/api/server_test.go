package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikehongyuanfan/lianfund/pkg/lending"
	"github.com/mikehongyuanfan/lianfund/pkg/models"
	"github.com/mikehongyuanfan/lianfund/pkg/notify"
	"github.com/mikehongyuanfan/lianfund/pkg/store"
)

func setupTestServer(t *testing.T, dbFile string) *Server {
	t.Helper()
	os.Remove(dbFile)
	st, err := store.NewSQLiteStore(dbFile)
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() {
		st.Close()
		os.Remove(dbFile)
	})
	return NewServer(lending.NewService(st, notify.LogDispatcher{}, 2))
}

func fundingRequestBody() map[string]interface{} {
	return map[string]interface{}{
		"loan_terms": map[string]interface{}{
			"loan_amount":         "1000000.00",
			"loan_term":           24,
			"interest_rate":       "5.5",
			"repayment_frequency": "monthly",
		},
		"calculation_input": map[string]interface{}{
			"establishment_fee_rate": "2.5",
			"monthly_line_fee_rate":  "1.2",
			"brokerage_fee_rate":     "1.0",
			"capped_interest_months": 9,
			"application_fee":        "1000.00",
			"due_diligence_fee":      "2500.00",
			"legal_fee_before_gst":   "3000.00",
			"valuation_fee":          "1500.00",
			"monthly_account_fee":    "100.00",
			"working_fee":            "500.00",
		},
		"user": "analyst",
	}
}

func TestAPI_FundingCalculationAndHistory(t *testing.T) {
	server := setupTestServer(t, "test_api_funding.db")
	router := server.Router()

	body, _ := json.Marshal(fundingRequestBody())
	req := httptest.NewRequest("POST", "/applications/APP-300/funding-calculation", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	var resp struct {
		Message           string                          `json:"message"`
		CalculationResult models.FundingCalculationResult `json:"calculation_result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "373150", resp.CalculationResult.TotalFees.String())
	assert.Equal(t, "626850", resp.CalculationResult.FundsAvailable.String())

	// History lists the record, newest first.
	req = httptest.NewRequest("GET", "/applications/APP-300/funding-calculation-history", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var history []models.FundingCalculationHistoryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "APP-300", history[0].ApplicationID)
	assert.Equal(t, 9, history[0].CalculationInput.CappedInterestMonths)
}

func TestAPI_FundingCalculationValidation(t *testing.T) {
	server := setupTestServer(t, "test_api_funding_invalid.db")
	router := server.Router()

	payload := fundingRequestBody()
	payload["loan_terms"].(map[string]interface{})["loan_amount"] = "0"
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/applications/APP-301/funding-calculation", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_GenerateScheduleAndRecordPayment(t *testing.T) {
	server := setupTestServer(t, "test_api_schedule.db")
	router := server.Router()

	scheduleReq := map[string]interface{}{
		"loan_terms": map[string]interface{}{
			"loan_amount":         "12000.00",
			"loan_term":           12,
			"repayment_frequency": "monthly",
		},
		"user": "analyst",
	}
	body, _ := json.Marshal(scheduleReq)
	req := httptest.NewRequest("POST", "/applications/APP-302/repayment-schedule", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, "body: %s", rr.Body.String())
	var installments []models.RepaymentInstallment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &installments))
	require.Len(t, installments, 12)

	// Record a full payment on the first installment.
	payReq := map[string]interface{}{
		"amount":    installments[0].Amount.String(),
		"paid_date": installments[0].DueDate.Format("2006-01-02"),
		"user":      "analyst",
	}
	body, _ = json.Marshal(payReq)
	req = httptest.NewRequest("POST", "/repayments/"+installments[0].ID.String()+"/payments", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	var paid models.RepaymentInstallment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &paid))
	assert.Equal(t, models.StatusPaid, paid.Status)

	// Listing includes display status.
	req = httptest.NewRequest("GET", "/applications/APP-302/repayments", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var views []struct {
		models.RepaymentInstallment
		DisplayStatus models.InstallmentStatus `json:"display_status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 12)
	assert.Equal(t, models.StatusPaid, views[0].DisplayStatus)
}

func TestAPI_RecordPaymentUnknownInstallment(t *testing.T) {
	server := setupTestServer(t, "test_api_unknown_payment.db")
	router := server.Router()

	body, _ := json.Marshal(map[string]interface{}{"amount": "100.00", "user": "analyst"})
	req := httptest.NewRequest("POST", "/repayments/0c9a0de3-52ad-4f4e-a0d8-64aef15c1ec4/payments", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_SweepEndpoint(t *testing.T) {
	server := setupTestServer(t, "test_api_sweep.db")
	router := server.Router()

	scheduleReq := map[string]interface{}{
		"loan_terms": map[string]interface{}{
			"loan_amount":         "24000.00",
			"loan_term":           6,
			"repayment_frequency": "monthly",
		},
		"user": "analyst",
	}
	body, _ := json.Marshal(scheduleReq)
	req := httptest.NewRequest("POST", "/applications/APP-303/repayment-schedule", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var installments []models.RepaymentInstallment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &installments))

	// Sweep dated 7 days before the first due date fires one reminder.
	sweepDay := installments[0].DueDate.AddDate(0, 0, -7).Format("2006-01-02")
	body, _ = json.Marshal(map[string]string{"today": sweepDay})
	req = httptest.NewRequest("POST", "/sweep", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	var result struct {
		Evaluated  int `json:"evaluated"`
		Dispatched []struct {
			Flag models.EscalationFlag `json:"flag"`
		} `json:"dispatched"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 6, result.Evaluated)
	require.Len(t, result.Dispatched, 1)
	assert.Equal(t, models.FlagReminderSent, result.Dispatched[0].Flag)
}
