package enums

import "fmt"

// CashTransactionKind maps to the cash_transaction_kind enum in Postgres.
type CashTransactionKind string

const (
	CashTransactionKindRevenue    CashTransactionKind = "revenue"
	CashTransactionKindExpense    CashTransactionKind = "expense"
	CashTransactionKindAdjustment CashTransactionKind = "adjustment"
)

var validCashTransactionKinds = []CashTransactionKind{
	CashTransactionKindRevenue,
	CashTransactionKindExpense,
	CashTransactionKindAdjustment,
}

// IsValid reports whether the value matches the canonical kind enum.
func (k CashTransactionKind) IsValid() bool {
	for _, candidate := range validCashTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCashTransactionKind converts raw input into CashTransactionKind.
func ParseCashTransactionKind(value string) (CashTransactionKind, error) {
	for _, candidate := range validCashTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cash transaction kind %q", value)
}
