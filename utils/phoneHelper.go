package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultCountryCode is the region assumed for numbers without an international
// prefix when the caller passes none.
const DefaultCountryCode = "NA"

// NormalizePhoneNumber formats a valid phone number as E.164. Anything else
// (emails, free text, invalid numbers) is returned trimmed but unchanged.
func NormalizePhoneNumber(contact, countryCode string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" || strings.Contains(contact, "@") {
		return contact
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	p, err := libphonenumber.Parse(contact, countryCode)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return contact
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}
