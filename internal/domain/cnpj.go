// Package domain contains core business types and interfaces.
//
// This file implements CNPJ validation. A CNPJ is the Brazilian national
// company identifier: 14 digits where the last two are check digits computed
// by a two-stage weighted modulo-11 algorithm.
package domain

import "strings"

// CNPJ is a validated 14-digit company identifier.
type CNPJ struct {
	digits string
}

// cnpjWeights1 and cnpjWeights2 are the official weight sequences for the
// first and second check digits.
var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ParseCNPJ normalizes and validates a CNPJ. Formatting characters are
// ignored; the digits must be exactly 14, must not all be identical, and the
// trailing two digits must match the computed check digits.
func ParseCNPJ(raw string) (CNPJ, error) {
	const op = "cnpj.parse"

	if strings.TrimSpace(raw) == "" {
		return CNPJ{}, Invalid(op, "CNPJ is required")
	}

	digits := normalizeDigits(raw)
	if len(digits) != 14 {
		return CNPJ{}, Errorf(EINVALID, op, "CNPJ must have 14 digits, got %d", len(digits))
	}

	if allSameDigit(digits) {
		return CNPJ{}, Invalid(op, "invalid CNPJ: all digits are identical")
	}

	if !validCNPJChecksum(digits) {
		return CNPJ{}, Invalid(op, "invalid CNPJ: check digits do not match")
	}

	return CNPJ{digits: digits}, nil
}

// Digits returns the bare 14-digit form, used as the storage key for the
// lifetime free-tier restriction.
func (c CNPJ) Digits() string {
	return c.digits
}

// String returns the canonical DD.DDD.DDD/DDDD-DD form.
func (c CNPJ) String() string {
	d := c.digits
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// IsZero reports whether the CNPJ is the zero value.
func (c CNPJ) IsZero() bool {
	return c.digits == ""
}

// normalizeDigits strips every non-digit character.
func normalizeDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// cnpjCheckDigit computes one check digit: weighted sum modulo 11, where a
// remainder below 2 yields 0 and anything else yields 11 minus the remainder.
func cnpjCheckDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

func validCNPJChecksum(digits string) bool {
	check1 := cnpjCheckDigit(digits, cnpjWeights1)
	if int(digits[12]-'0') != check1 {
		return false
	}
	check2 := cnpjCheckDigit(digits, cnpjWeights2)
	return int(digits[13]-'0') == check2
}
