package domain

import (
	"strings"
	"time"

	"github.com/carehub/pharmacy-portal/internal/platform/record"
)

// UnknownPatient is shown when a record carries no usable name.
const UnknownPatient = "Unknown Patient"

// PersonName reads a display name: firstName + lastName when either is set,
// else name, else fullName. Empty when none is present.
func PersonName(r record.Record) string {
	first := r.String("firstName", "first_name")
	last := r.String("lastName", "last_name")
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	return r.String("name", "fullName")
}

// FormatAddress renders an address that may be a plain string or an object
// with street, city, state and postal code parts.
func FormatAddress(r record.Record, keys ...string) string {
	if s := r.String(keys...); s != "" {
		return s
	}
	obj := r.Object(keys...)
	if len(obj) == 0 {
		return ""
	}
	parts := make([]string, 0, 5)
	for _, k := range [][]string{
		{"street", "line1", "addressLine1"},
		{"area", "line2", "addressLine2"},
		{"city"},
		{"state"},
		{"zipCode", "postalCode", "pincode", "zip"},
	} {
		if s := obj.String(k...); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// AgeAt returns whole years between dob and now, or 0 when dob is unset or
// in the future.
func AgeAt(dob, now time.Time) int {
	if dob.IsZero() || dob.After(now) {
		return 0
	}
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
