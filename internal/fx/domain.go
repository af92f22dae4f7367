// Package fx converts expense amounts between currencies using live
// exchange rates.
package fx

import (
	"context"
	"errors"

	"golang.org/x/text/currency"
)

var (
	// ErrConversion occurs when an exchange rate cannot be obtained or the
	// amount is not convertible. Submissions must abort on it; it is never
	// silently defaulted to rate 1.
	ErrConversion = errors.New("fx: conversion failed")
	// ErrUnsupportedCurrency occurs when a currency code is not ISO 4217.
	ErrUnsupportedCurrency = errors.New("fx: unsupported currency code")
)

// RateProvider returns the multiplier converting one unit of from into to.
type RateProvider interface {
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// ValidateCode checks that code is a well-formed ISO 4217 currency code and
// returns its canonical uppercase form.
func ValidateCode(code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", ErrUnsupportedCurrency
	}
	return unit.String(), nil
}
