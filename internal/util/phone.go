package util

import (
	"regexp"
	"strings"

	"github.com/mathemusician/church-volunteers/internal/model"
	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is the only region numbers are delivered to.
const DefaultRegion = "US"

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizePhone turns user input into E.164 (+1XXXXXXXXXX). It accepts
// 10-digit national numbers and 11-digit numbers with a leading 1 and
// rejects everything else with model.ErrInvalidPhone.
func NormalizePhone(raw string) (string, error) {
	digits := nonDigits.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case len(digits) == 10:
		digits = "1" + digits
	case len(digits) == 11 && digits[0] == '1':
	default:
		return "", model.ErrInvalidPhone
	}

	num, err := phonenumbers.Parse("+"+digits, DefaultRegion)
	if err != nil {
		return "", model.ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumberForRegion(num, DefaultRegion) {
		return "", model.ErrInvalidPhone
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeOptionalPhone is NormalizePhone for nullable fields; blank input
// yields nil.
func NormalizeOptionalPhone(raw string) (*string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	p, err := NormalizePhone(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MaskPhone keeps the last four digits for logs.
func MaskPhone(p string) string {
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
