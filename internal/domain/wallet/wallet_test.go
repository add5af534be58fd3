package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/domain/domaintest"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBalanceFromRecord(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
		want string
	}{
		{"explicit total", record.Record{"availableBalance": 100, "pendingBalance": 50, "totalBalance": 175}, "175"},
		{"derived total", record.Record{"availableBalance": "100.25", "pendingBalance": 49.75}, "150"},
		{"empty", record.Record{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BalanceFromRecord(tt.rec)
			if !b.Total.Equal(dec(tt.want)) {
				t.Errorf("got total %s, want %s", b.Total, tt.want)
			}
			if b.Currency != DefaultCurrency {
				t.Errorf("expected default currency, got %q", b.Currency)
			}
		})
	}
}

func TestEarningFromRecord_Commission(t *testing.T) {
	raw := json.RawMessage(`{"_id":"e1","amount":450,"status":"completed","metadata":{"commissionRate":0.1,"orderId":"o77"}}`)
	e := EarningFromRecord(record.Parse(raw))
	if e.Description != "Payment received for medicines" {
		t.Errorf("unexpected description %q", e.Description)
	}
	if e.Detail != "Commission: 10.0%" {
		t.Errorf("unexpected detail %q", e.Detail)
	}
	if e.Reference != "o77" || e.Status != StatusCompleted || e.Kind != KindEarning {
		t.Errorf("unexpected earning %+v", e)
	}
}

func TestEarningFromRecord_ExplicitFields(t *testing.T) {
	e := EarningFromRecord(record.Record{
		"description": "Order #12",
		"detail":      "Net of fees",
		"metadata":    map[string]any{"commissionRate": 0.125},
		"status":      "settled",
	})
	if e.Description != "Order #12" || e.Detail != "Net of fees" {
		t.Errorf("expected explicit fields to win, got %+v", e)
	}
	if e.Status != StatusPending {
		t.Errorf("expected unknown status to read as pending, got %s", e.Status)
	}
}

func TestTransactionFromRecord_Kind(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
		want Kind
	}{
		{"credit", record.Record{"type": "credit", "amount": 10}, KindEarning},
		{"debit", record.Record{"type": "debit", "amount": 10}, KindWithdrawal},
		{"negative amount", record.Record{"amount": -25}, KindWithdrawal},
		{"untyped", record.Record{"amount": 25}, KindEarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := TransactionFromRecord(tt.rec)
			if tx.Kind != tt.want {
				t.Errorf("got %s, want %s", tx.Kind, tt.want)
			}
			if tx.Amount.IsNegative() {
				t.Errorf("expected absolute amount, got %s", tx.Amount)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]Transaction{
		{Amount: dec("450"), Status: StatusCompleted},
		{Amount: dec("50.5"), Status: StatusPaid},
		{Amount: dec("120"), Status: StatusPending},
		{Amount: dec("30"), Status: StatusApproved},
		{Amount: dec("999"), Status: StatusRejected},
	})
	if !sum.Settled.Equal(dec("500.5")) || !sum.Unsettled.Equal(dec("150")) || sum.Count != 4 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRequest_Validate(t *testing.T) {
	avail := dec("500")
	tests := []struct {
		name      string
		amount    string
		available *decimal.Decimal
		ok        bool
	}{
		{"within balance", "500", &avail, true},
		{"over balance", "500.01", &avail, false},
		{"zero", "0", &avail, false},
		{"negative", "-5", nil, false},
		{"unknown balance", "9999", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Request{Amount: dec(tt.amount)}.Validate(tt.available)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !domain.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Withdraw(t *testing.T) {
	backend := domaintest.NewBackend().Reply(http.MethodPost, basePath+"/withdraw", `{"withdrawal":{"_id":"w1","status":"pending"}}`)
	svc := NewService(backend)

	bal := &Balance{Available: dec("300")}
	tx, err := svc.Withdraw(context.Background(), Request{Amount: dec("120.50")}, bal)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if tx.ID != "w1" || !tx.Amount.Equal(dec("120.5")) || tx.Kind != KindWithdrawal {
		t.Errorf("unexpected withdrawal %+v", tx)
	}
	call, _ := backend.Last()
	var body map[string]any
	if err := call.DecodeBody(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["amount"] != 120.5 || body["method"] != DefaultMethod {
		t.Errorf("unexpected body %v", body)
	}

	if _, err := svc.Withdraw(context.Background(), Request{Amount: dec("301")}, bal); !domain.IsValidation(err) {
		t.Errorf("expected over-balance rejection, got %v", err)
	}
	if n := len(backend.Calls()); n != 1 {
		t.Errorf("expected rejected request to skip backend, got %d calls", n)
	}
}

func TestService_EarningsPage(t *testing.T) {
	backend := domaintest.NewBackend().Reply(http.MethodGet, basePath+"/earnings", `{"earnings":[{"_id":"e1","amount":10},{"_id":"e2","amount":20}]}`)
	page, err := NewService(backend).Earnings(context.Background(), listing.Query{Page: 1, Limit: listing.ItemsPerPage})
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if len(page.Items) != 2 || page.Items[1].Description != DefaultEarningDescription {
		t.Errorf("unexpected page %+v", page.Items)
	}
}

func TestHandler_WithdrawOverBalance(t *testing.T) {
	backend := domaintest.NewBackend().Reply(http.MethodGet, basePath+"/balance", `{"availableBalance":50}`)
	h := NewHandler(NewService(backend), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/wallet/withdraw", strings.NewReader(`{"amount":"75"}`))
	err := h.Withdraw(echo.New().NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	for _, call := range backend.Calls() {
		if call.Method == http.MethodPost {
			t.Error("expected no withdraw request")
		}
	}
}

func TestHandler_WithdrawBalanceUnavailable(t *testing.T) {
	backend := domaintest.NewBackend().
		Fail(http.MethodGet, basePath+"/balance", http.StatusServiceUnavailable, "down").
		Reply(http.MethodPost, basePath+"/withdraw", nil)
	h := NewHandler(NewService(backend), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/wallet/withdraw", strings.NewReader(`{"amount":75,"method":"upi"}`))
	if err := h.Withdraw(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}
