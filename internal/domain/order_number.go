package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultOrderPrefix is the brand prefix of issued order numbers.
const DefaultOrderPrefix = "MA"

var ErrInvalidOrderNumber = errors.New("invalid order number format")

// orderNumberPattern matches PREFIX-YEAR-SEQ, e.g. MA-2025-001. The sequence
// is at least three digits and widens once a year exceeds 999 orders.
var orderNumberPattern = regexp.MustCompile(`^([A-Z]+)-(\d{4})-(\d{3,})$`)

// OrderNumber is the parsed form of a human-readable order identifier.
type OrderNumber struct {
	Prefix   string
	Year     int
	Sequence int64
}

func (n OrderNumber) String() string {
	return FormatOrderNumber(n.Prefix, n.Year, n.Sequence)
}

// FormatOrderNumber renders PREFIX-YEAR-SEQ with the sequence zero-padded to
// three digits. Sequences beyond 999 keep their natural width.
func FormatOrderNumber(prefix string, year int, sequence int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, sequence)
}

// ParseOrderNumber splits an identifier into prefix, year and sequence.
func ParseOrderNumber(s string) (OrderNumber, error) {
	matches := orderNumberPattern.FindStringSubmatch(s)
	if matches == nil {
		return OrderNumber{}, fmt.Errorf("%w: %q", ErrInvalidOrderNumber, s)
	}

	year, err := strconv.Atoi(matches[2])
	if err != nil {
		return OrderNumber{}, fmt.Errorf("%w: %q", ErrInvalidOrderNumber, s)
	}

	sequence, err := strconv.ParseInt(matches[3], 10, 64)
	if err != nil {
		return OrderNumber{}, fmt.Errorf("%w: %q", ErrInvalidOrderNumber, s)
	}

	return OrderNumber{
		Prefix:   matches[1],
		Year:     year,
		Sequence: sequence,
	}, nil
}

// IsCurrentYear reports whether the identifier was issued in the calendar
// year of now.
func IsCurrentYear(s string, now time.Time) bool {
	parsed, err := ParseOrderNumber(s)
	if err != nil {
		return false
	}

	return parsed.Year == now.UTC().Year()
}
