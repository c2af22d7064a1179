package utils

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// Regex to remove formatting characters (spaces, hyphens, parentheses)
	nonDigitRegex = regexp.MustCompile(`[^0-9+]`)
	// Loose E.164 shape: optional +, 7 to 15 digits
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// NormalizePhoneNumber strips formatting characters from a phone number and
// validates the remaining shape. Nominators come from many countries, so only
// length and charset are checked, never a national prefix.
func NormalizePhoneNumber(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", errors.New("phone number cannot be empty")
	}

	normalized := nonDigitRegex.ReplaceAllString(phone, "")

	// A + is only meaningful as a leading international prefix
	if i := strings.LastIndex(normalized, "+"); i > 0 {
		return "", errors.New("invalid phone number format")
	}

	if !phoneRegex.MatchString(normalized) {
		return "", errors.New("invalid phone number format")
	}

	return normalized, nil
}
