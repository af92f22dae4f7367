package fx

import (
	"context"
	"fmt"
	"math"
)

// Converter converts amounts between currencies.
type Converter struct {
	provider RateProvider
}

// NewConverter constructs a Converter backed by the given provider.
func NewConverter(provider RateProvider) *Converter {
	return &Converter{provider: provider}
}

// Convert returns amount expressed in the to currency. Same-currency
// conversions return the amount untouched without consulting the provider,
// so no rounding drift is possible on the identity path.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if amount <= 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return 0, fmt.Errorf("%w: amount must be a finite positive number", ErrConversion)
	}
	if from == to {
		return amount, nil
	}
	rate, err := c.provider.GetRate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}
