// Package units converts between decimal ether strings and wei amounts.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// EtherDecimals is the number of wei decimals in one ether.
const EtherDecimals = 18

var weiContext = apd.BaseContext.WithPrecision(100)

// ParseEther converts a non-negative decimal ether amount ("1.25") into wei.
// Amounts with more than 18 fractional digits are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}

	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("amount %q is not a finite number", s)
	}
	if d.Negative && !d.IsZero() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}

	var wei apd.Decimal
	if _, err := weiContext.Mul(&wei, d, apd.New(1, EtherDecimals)); err != nil {
		return nil, fmt.Errorf("scale amount %q: %w", s, err)
	}

	var integral apd.Decimal
	cond, err := weiContext.Quantize(&integral, &wei, 0)
	if err != nil {
		return nil, fmt.Errorf("quantize amount %q: %w", s, err)
	}
	if cond.Inexact() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, EtherDecimals)
	}
	return integral.Coeff.MathBigInt(), nil
}

// ParseWei parses an integer wei amount in base 10.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("wei amount %q is negative", s)
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	d := apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(wei), -EtherDecimals)
	var reduced apd.Decimal
	reduced.Reduce(d)
	return reduced.Text('f')
}
