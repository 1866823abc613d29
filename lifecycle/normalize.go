/*
normalize.go - Date normalizer

PURPOSE:
  Compliance records arrive with validity dates in several encodings:
  forms post DD-MM-YYYY, imported sheets use DD/MM/YYYY or two-digit years,
  and older rows carry ISO YYYY-MM-DD (sometimes with a time suffix).
  Normalize turns all of them into one canonical Date.

ACCEPTED FORMS:
  DD-MM-YYYY   05-03-2026
  DD/MM/YYYY   5/3/2026
  DD-MM-YY     05-03-26      (yy <= 50 -> 20yy, else 19yy)
  YYYY-MM-DD   2026-03-05
  YYYY-MM-DDTHH:MM:SS[Z|±hh:mm]  (time part validated, then ignored)

  There is no MM-DD-YYYY path: every record type uses day-first order.

SEE ALSO:
  - errors.go: ParseError
  - reconcile.go: Counts parse failures instead of failing the sweep
*/
package lifecycle

import (
	"strconv"
	"strings"
	"time"
)

// twoDigitYearPivot splits two-digit years between centuries.
const twoDigitYearPivot = 50

// Normalize parses raw into a canonical Date.
func Normalize(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, parseErr(raw, "empty date")
	}

	if strings.ContainsRune(s, 'T') {
		d, ok := isoTimestampDate(s)
		if !ok {
			return Date{}, parseErr(raw, "malformed timestamp")
		}
		s = d
	}

	hasDash := strings.Contains(s, "-")
	hasSlash := strings.Contains(s, "/")
	var sep string
	switch {
	case hasDash && hasSlash:
		return Date{}, parseErr(raw, "mixed separators")
	case hasDash:
		sep = "-"
	case hasSlash:
		sep = "/"
	default:
		return Date{}, parseErr(raw, "missing separator")
	}

	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return Date{}, parseErr(raw, "expected 3 components")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, ok := atoiDigits(p)
		if !ok {
			return Date{}, parseErr(raw, "non-numeric component "+strconv.Quote(p))
		}
		nums[i] = n
	}

	var year, month, day int
	if len(parts[0]) == 4 {
		// YYYY-MM-DD
		if sep != "-" {
			return Date{}, parseErr(raw, "ISO date must use '-'")
		}
		if len(parts[1]) > 2 || len(parts[2]) > 2 {
			return Date{}, parseErr(raw, "malformed ISO date")
		}
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		if len(parts[0]) > 2 || len(parts[1]) > 2 {
			return Date{}, parseErr(raw, "day and month must have 1 or 2 digits")
		}
		day, month = nums[0], nums[1]
		switch len(parts[2]) {
		case 2:
			year = expandYear(nums[2])
		case 4:
			year = nums[2]
		default:
			return Date{}, parseErr(raw, "year must have 2 or 4 digits")
		}
	}

	if year < 1 {
		return Date{}, parseErr(raw, "year out of range")
	}
	if month < 1 || month > 12 {
		return Date{}, parseErr(raw, "month out of range")
	}
	if day < 1 || day > daysIn(year, time.Month(month)) {
		return Date{}, parseErr(raw, "day out of range")
	}

	return NewDate(year, time.Month(month), day), nil
}

// MustNormalize is Normalize for literals in tests and fixtures.
func MustNormalize(raw string) Date {
	d, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// isoTimestampLayouts are the timestamp forms whose date part is kept.
var isoTimestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

// isoTimestampDate returns the YYYY-MM-DD prefix of a full ISO timestamp.
// The whole string must parse; the date is taken as written, not shifted
// by the offset.
func isoTimestampDate(s string) (string, bool) {
	for _, layout := range isoTimestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return s[:len("2006-01-02")], true
		}
	}
	return "", false
}

func expandYear(yy int) int {
	if yy <= twoDigitYearPivot {
		return 2000 + yy
	}
	return 1900 + yy
}

// atoiDigits accepts only ASCII digits; strconv.Atoi would also take signs.
func atoiDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseErr(raw, reason string) error {
	return &ParseError{Raw: raw, Reason: reason}
}
