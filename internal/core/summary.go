package core

import "github.com/shopspring/decimal"

// DefaultCurrency is the reporting label used when none is configured.
const DefaultCurrency = "USD"

// Summary is the income/expense aggregate of one ledger. It is never
// stored; callers recompute it from the live collection.
type Summary struct {
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetBalance    decimal.Decimal `json:"netBalance"`
	Currency      string          `json:"currency"`
}

// Summarize totals income and expense amounts as stored, signs included.
func Summarize(txs []Transaction, currency string) Summary {
	if currency == "" {
		currency = DefaultCurrency
	}
	income := decimal.Zero
	expenses := decimal.Zero
	for _, t := range txs {
		switch {
		case t.Kind.IsIncome():
			income = income.Add(t.Amount)
		case t.Kind.IsExpense():
			expenses = expenses.Add(t.Amount)
		}
	}
	return Summary{
		TotalIncome:   income,
		TotalExpenses: expenses,
		NetBalance:    income.Sub(expenses),
		Currency:      currency,
	}
}
