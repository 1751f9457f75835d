// Package units converts between human readable token amounts and the
// smallest on-chain unit used by the vault.
package units

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals carried by the native asset.
const EtherDecimals = 18

// Parse converts a decimal string such as "0.1" into base units using the
// provided number of decimals. Fractions finer than one base unit are rejected.
func Parse(value string, decimals int32) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", value)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows 256 bits", value)
	}
	return out, nil
}

// ParseEther is Parse with the native asset precision.
func ParseEther(value string) (*uint256.Int, error) {
	return Parse(value, EtherDecimals)
}

// Format renders base units as a decimal string with trailing zeros removed.
func Format(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

// FormatEther is Format with the native asset precision.
func FormatEther(amount *uint256.Int) string {
	return Format(amount, EtherDecimals)
}

// ParseBase accepts either a plain integer in base units or a 0x prefixed hex value.
func ParseBase(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		out, err := uint256.FromHex(value)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", value, err)
		}
		return out, nil
	}
	out, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return out, nil
}
