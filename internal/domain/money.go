package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits an amount may carry.
const MoneyScale = 2

// ParseDecimal parses an amount from its wire form. It only rejects text that
// is not a number; sign and scale are left to CheckAmount so that a bid on an
// unbiddable item reports that first.
func ParseDecimal(raw string) (decimal.Decimal, *BidError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, NewBidError(InvalidAmount, "bid amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, NewBidError(InvalidAmount, "bid amount %q is not a number", raw)
	}
	return amount, nil
}

func CheckAmount(amount decimal.Decimal) *BidError {
	if amount.Sign() <= 0 {
		return NewBidError(InvalidAmount, "bid amount must be positive, got %s", amount.String())
	}
	if !HasMoneyScale(amount) {
		return NewBidError(InvalidAmount, "bid amount %s has more than %d decimal places", amount.String(), MoneyScale)
	}
	return nil
}

func HasMoneyScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyScale))
}
