package wallet

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

const (
	DefaultCurrency           = "INR"
	DefaultEarningDescription = "Payment received for medicines"
	DefaultMethod             = "bank_transfer"
)

// Balance is the pharmacy's wallet position.
type Balance struct {
	Available      decimal.Decimal `json:"available"`
	Pending        decimal.Decimal `json:"pending"`
	Total          decimal.Decimal `json:"total"`
	TotalEarnings  decimal.Decimal `json:"totalEarnings"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
	Currency       string          `json:"currency"`
}

// BalanceFromRecord maps the balance payload. Total is the backend's
// totalBalance when sent, else available plus pending.
func BalanceFromRecord(r record.Record) Balance {
	b := Balance{
		Available:      r.Decimal("availableBalance", "available", "balance"),
		Pending:        r.Decimal("pendingBalance", "pending"),
		TotalEarnings:  r.Decimal("totalEarnings", "earnings"),
		TotalWithdrawn: r.Decimal("totalWithdrawn", "withdrawn", "totalWithdrawals"),
		Currency:       r.StringOr(DefaultCurrency, "currency"),
	}
	if total, ok := r.LookupDecimal("totalBalance", "total"); ok {
		b.Total = total
	} else {
		b.Total = b.Available.Add(b.Pending)
	}
	return b
}

type Kind string

const (
	KindEarning    Kind = "earning"
	KindWithdrawal Kind = "withdrawal"
)

func parseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "earning", "earnings", "credit", "payment", "order_payment":
		return KindEarning, true
	case "withdrawal", "withdraw", "debit", "payout":
		return KindWithdrawal, true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
)

// ParseStatus normalizes s; unknown values read as pending.
func ParseStatus(s string) Status {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusCompleted, StatusApproved, StatusRejected, StatusPaid:
		return st
	}
	return StatusPending
}

// Settled reports whether money has moved for the transaction.
func (s Status) Settled() bool {
	return s == StatusCompleted || s == StatusPaid
}

// Summary splits transaction amounts by whether the money has moved.
type Summary struct {
	Settled   decimal.Decimal `json:"settled"`
	Unsettled decimal.Decimal `json:"unsettled"`
	Count     int             `json:"count"`
}

// Summarize totals txs. Rejected transactions count toward neither side.
func Summarize(txs []Transaction) Summary {
	sum := Summary{Settled: decimal.Zero, Unsettled: decimal.Zero}
	for _, t := range txs {
		switch {
		case t.Status == StatusRejected:
			continue
		case t.Status.Settled():
			sum.Settled = sum.Settled.Add(t.Amount)
		default:
			sum.Unsettled = sum.Unsettled.Add(t.Amount)
		}
		sum.Count++
	}
	return sum
}

// Transaction is one entry of the earnings or withdrawals stream.
type Transaction struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	Description string          `json:"description"`
	Detail      string          `json:"detail,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Method      string          `json:"method,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func baseTransaction(r record.Record) Transaction {
	t := Transaction{
		ID:          domain.ID(r),
		Amount:      r.Decimal("amount", "netAmount"),
		Status:      ParseStatus(r.String("status")),
		Description: r.String("description", "note"),
		Reference:   r.String("reference", "transactionId", "metadata.orderId", "orderId"),
		Method:      r.String("method", "paymentMethod", "withdrawalMethod"),
		CreatedAt:   r.Time("createdAt", "date", "requestedAt"),
	}
	if t.Amount.IsNegative() {
		t.Amount = t.Amount.Abs()
	}
	return t
}

// EarningFromRecord maps an earnings entry. A missing description gets the
// default text and a commission rate in metadata becomes the detail line.
func EarningFromRecord(r record.Record) Transaction {
	t := baseTransaction(r)
	t.Kind = KindEarning
	if t.Description == "" {
		t.Description = DefaultEarningDescription
	}
	t.Detail = r.String("detail", "details")
	if t.Detail == "" {
		if rate, ok := r.LookupDecimal("metadata.commissionRate", "commissionRate"); ok {
			t.Detail = "Commission: " + rate.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
		}
	}
	return t
}

// WithdrawalFromRecord maps a withdrawal request.
func WithdrawalFromRecord(r record.Record) Transaction {
	t := baseTransaction(r)
	t.Kind = KindWithdrawal
	if t.Description == "" {
		t.Description = "Withdrawal"
		if t.Method != "" {
			t.Description += " via " + strings.ReplaceAll(t.Method, "_", " ")
		}
	}
	t.Detail = r.String("detail", "details", "rejectionReason", "adminNote")
	return t
}

// TransactionFromRecord maps a mixed-stream entry by its type, treating
// negative or debit amounts as withdrawals.
func TransactionFromRecord(r record.Record) Transaction {
	kind, ok := parseKind(r.String("type", "kind", "category"))
	if !ok {
		kind = KindEarning
		if r.Decimal("amount").IsNegative() {
			kind = KindWithdrawal
		}
	}
	if kind == KindWithdrawal {
		return WithdrawalFromRecord(r)
	}
	return EarningFromRecord(r)
}

// Request is a withdrawal request.
type Request struct {
	Amount         decimal.Decimal   `json:"amount"`
	Method         string            `json:"method,omitempty"`
	AccountDetails map[string]string `json:"accountDetails,omitempty"`
}

// Validate rejects a non-positive amount, and an amount above available when
// the balance is known.
func (req Request) Validate(available *decimal.Decimal) error {
	if !req.Amount.IsPositive() {
		return domain.Invalid("amount", "must be greater than zero")
	}
	if available != nil && req.Amount.GreaterThan(*available) {
		return domain.Invalid("amount", "exceeds available balance of "+available.StringFixed(2))
	}
	return nil
}

func (req Request) body() map[string]any {
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = DefaultMethod
	}
	b := map[string]any{
		"amount": json.Number(req.Amount.String()),
		"method": method,
	}
	if len(req.AccountDetails) > 0 {
		b["accountDetails"] = req.AccountDetails
	}
	return b
}
