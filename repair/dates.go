package repair

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// canonicalFormat is how the app stores timestamps.
const canonicalFormat = "2006-01-02T15:04:05.000Z"

// DateFields are the attributes the repair pass inspects for malformed
// values. Anything not listed is never touched.
var DateFields = []string{
	"createdDate", "updatedDate", "assignedDate", "requestDate",
	"visitReviewDate", "proposalDate", "contractDate", "escrowDate",
	"estimatedClosingDate", "closingDate", "revSharePayDate",
	"underwritingDate", "escrowPaymentDate", "boosterCompletionDate",
	"invoiceDate", "quoteSentDate", "quoteOpenedDate", "quoteSignedDate",
	"contractingStartDate", "contractSentDate", "archivedDate",
	"operationManagerApprovedDate", "sentDate", "openedDate",
	"signedDate", "underwritingApprovedDate", "contractSignedDate",
	"convertedDate", "expiredDate", "rejectedDate",
	"requestedVisitDateTime", "visitDate", "moveToQuotingDate",
}

var (
	slashDate    = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`)
	slashDate4   = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	dashDate     = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{2,4}$`)
	unpaddedISO  = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)
	spacedISO    = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2} \d{1,2}:\d{2}:\d{2}$`)
	canonicalish = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
)

// expandYear maps a 2-digit year: below 50 is 2000s, the rest 1900s.
func expandYear(y int) int {
	if y < 50 {
		return 2000 + y
	}
	return 1900 + y
}

func buildDate(year, month, day int) (time.Time, error) {
	dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components; reject those.
	if dt.Year() != year || int(dt.Month()) != month || dt.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return dt, nil
}

// NormalizeDate converts a malformed date string to the canonical timestamp.
// It returns the value and whether it changed. Already-canonical values and
// empty strings pass through unchanged; unparseable values are an error and
// the caller logs and skips them, never deletes.
func NormalizeDate(value string) (string, bool, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return value, false, nil
	}

	if canonicalish.MatchString(s) {
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return value, false, nil
		}
		if _, err := time.Parse(canonicalFormat, s); err == nil {
			return value, false, nil
		}
	}

	switch {
	case slashDate.MatchString(s), slashDate4.MatchString(s):
		parts := strings.Split(s, "/")
		month, _ := strconv.Atoi(parts[0])
		day, _ := strconv.Atoi(parts[1])
		year, _ := strconv.Atoi(parts[2])
		if len(parts[2]) == 2 {
			year = expandYear(year)
		}
		dt, err := buildDate(year, month, day)
		if err != nil {
			return value, false, err
		}
		return dt.Format(canonicalFormat), true, nil

	case dashDate.MatchString(s):
		parts := strings.Split(s, "-")
		month, _ := strconv.Atoi(parts[0])
		day, _ := strconv.Atoi(parts[1])
		year, _ := strconv.Atoi(parts[2])
		if len(parts[2]) == 2 {
			year = expandYear(year)
		}
		dt, err := buildDate(year, month, day)
		if err != nil {
			return value, false, err
		}
		return dt.Format(canonicalFormat), true, nil

	case unpaddedISO.MatchString(s):
		parts := strings.Split(s, "-")
		year, _ := strconv.Atoi(parts[0])
		month, _ := strconv.Atoi(parts[1])
		day, _ := strconv.Atoi(parts[2])
		dt, err := buildDate(year, month, day)
		if err != nil {
			return value, false, err
		}
		return dt.Format(canonicalFormat), true, nil

	case spacedISO.MatchString(s):
		dt, err := time.Parse("2006-1-2 15:4:5", s)
		if err != nil {
			return value, false, fmt.Errorf("unparseable date %q", s)
		}
		return dt.UTC().Format(canonicalFormat), true, nil
	}

	return value, false, fmt.Errorf("unparseable date %q", s)
}
