package testcase

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimePeriod is a signed calendar offset. Negative components represent
// offsets that land before the anchor date.
type TimePeriod struct {
	Years  int
	Months int
	Weeks  int
	Days   int
}

// ParseTimePeriod parses the textual form used by test case authors:
// "6 months", "1 year 2 months", "-4 weeks", "10d". An empty string or "0"
// yields the zero period.
func ParseTimePeriod(s string) (TimePeriod, error) {
	var tp TimePeriod
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return tp, nil
	}

	tokens := splitPeriodTokens(s)
	if len(tokens) == 0 {
		return tp, fmt.Errorf("time period %q: no terms", s)
	}

	for i := 0; i < len(tokens); i++ {
		qty, err := strconv.Atoi(tokens[i])
		if err != nil {
			return TimePeriod{}, fmt.Errorf("time period %q: invalid quantity %q", s, tokens[i])
		}
		if i+1 >= len(tokens) {
			return TimePeriod{}, fmt.Errorf("time period %q: quantity %d has no unit", s, qty)
		}
		i++
		switch strings.TrimSuffix(tokens[i], "s") {
		case "d", "day":
			tp.Days += qty
		case "w", "week":
			tp.Weeks += qty
		case "m", "month":
			tp.Months += qty
		case "y", "year":
			tp.Years += qty
		default:
			return TimePeriod{}, fmt.Errorf("time period %q: unknown unit %q", s, tokens[i])
		}
	}
	return tp, nil
}

// splitPeriodTokens separates "-10d" into "-10", "d" and splits on whitespace.
// Each quantity carries its own sign.
func splitPeriodTokens(s string) []string {
	var tokens []string
	for _, field := range strings.Fields(s) {
		j := 0
		if j < len(field) && (field[j] == '-' || field[j] == '+') {
			j++
		}
		digits := j
		for j < len(field) && field[j] >= '0' && field[j] <= '9' {
			j++
		}
		if j > digits && j < len(field) {
			tokens = append(tokens, field[:j], field[j:])
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// MustParseTimePeriod is ParseTimePeriod for literals known to be valid.
func MustParseTimePeriod(s string) TimePeriod {
	tp, err := ParseTimePeriod(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// IsZero reports whether the period has no length, meaning "on the anchor date".
func (tp TimePeriod) IsZero() bool {
	return tp.Years == 0 && tp.Months == 0 && tp.Weeks == 0 && tp.Days == 0
}

// IsNegative reports whether the period, taken as a whole, points before the anchor.
// Mixed-sign periods are judged by their largest unit.
func (tp TimePeriod) IsNegative() bool {
	for _, v := range []int{tp.Years, tp.Months, tp.Weeks, tp.Days} {
		if v != 0 {
			return v < 0
		}
	}
	return false
}

// Negate returns the period pointing the opposite way.
func (tp TimePeriod) Negate() TimePeriod {
	return TimePeriod{Years: -tp.Years, Months: -tp.Months, Weeks: -tp.Weeks, Days: -tp.Days}
}

// DateFrom applies the period to anchor. Years and months are applied first,
// clamping to the last day of the target month, then weeks and days.
func (tp TimePeriod) DateFrom(anchor time.Time) time.Time {
	y, m, d := anchor.Date()
	totalMonths := int(m) - 1 + tp.Months + tp.Years*12
	ty := y + floorDiv(totalMonths, 12)
	tm := time.Month(floorMod(totalMonths, 12) + 1)
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	out := time.Date(ty, tm, d, 0, 0, 0, 0, anchor.Location())
	return out.AddDate(0, 0, tp.Weeks*7+tp.Days)
}

func (tp TimePeriod) String() string {
	if tp.IsZero() {
		return "0 days"
	}
	var parts []string
	add := func(v int, unit string) {
		if v == 0 {
			return
		}
		if v == 1 || v == -1 {
			parts = append(parts, fmt.Sprintf("%d %s", v, unit))
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", v, unit))
	}
	add(tp.Years, "year")
	add(tp.Months, "month")
	add(tp.Weeks, "week")
	add(tp.Days, "day")
	return strings.Join(parts, " ")
}

// MarshalText renders the period in its parseable form.
func (tp TimePeriod) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

// UnmarshalText accepts the forms understood by ParseTimePeriod.
func (tp *TimePeriod) UnmarshalText(b []byte) error {
	parsed, err := ParseTimePeriod(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
