// Package firestore contains the Firestore-backed repository implementations.
//
// Money amounts are stored as decimal strings ("12.34") next to a currency
// code so documents stay human-readable in the console and never suffer float
// drift.
package firestore

import (
	"fmt"

	domain "github.com/trimline-home/api/internal/domain"
)

func encodeMoney(m domain.Money) string {
	return m.String()
}

func decodeMoney(value, currency string) (domain.Money, error) {
	if value == "" {
		return domain.ZeroMoney(currency), nil
	}
	m, err := domain.MoneyFromString(value, currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("decode money %q: %w", value, err)
	}
	return m, nil
}
