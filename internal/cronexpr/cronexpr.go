// Package cronexpr evaluates five-field cron expressions against wall-clock
// instants.
//
// Parsing is deliberately lenient: only field arity is checked, and malformed
// sub-patterns fail to match instead of erroring. Day-of-month and weekday
// are evaluated conjunctively, which deviates from the POSIX rule of OR-ing
// them when both are restricted; callers relying on standard cron semantics
// should lint with LintStandard.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Expression holds the five positional fields of a parsed schedule.
type Expression struct {
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	Weekday    string
}

// ParseError reports a schedule that does not split into five fields.
type ParseError struct {
	Expr   string
	Fields int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron expression %q: expected 5 fields, got %d", e.Expr, e.Fields)
}

// Parse splits expr on whitespace into exactly five fields. No further
// validation happens here; bad sub-patterns surface as match failures.
func Parse(expr string) (Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Expression{}, &ParseError{Expr: expr, Fields: len(fields)}
	}
	return Expression{
		Minute:     fields[0],
		Hour:       fields[1],
		DayOfMonth: fields[2],
		Month:      fields[3],
		Weekday:    fields[4],
	}, nil
}

// Matches reports whether a single field pattern matches value. Grammars are
// tried in priority order: "*", "*/N", comma list, inclusive range, plain
// integer. A pattern that fits no grammar, a non-numeric or zero step, and a
// reversed range ("22-2") all simply fail to match.
func Matches(pattern string, value int) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*/"):
		n, err := strconv.Atoi(pattern[2:])
		if err != nil || n <= 0 {
			return false
		}
		return value%n == 0
	case strings.Contains(pattern, ","):
		for _, part := range strings.Split(pattern, ",") {
			if v, err := strconv.Atoi(part); err == nil && v == value {
				return true
			}
		}
		return false
	case strings.Contains(pattern, "-"):
		bounds := strings.SplitN(pattern, "-", 2)
		lo, loErr := strconv.Atoi(bounds[0])
		hi, hiErr := strconv.Atoi(bounds[1])
		if loErr != nil || hiErr != nil {
			return false
		}
		return lo <= value && value <= hi
	default:
		v, err := strconv.Atoi(pattern)
		return err == nil && v == value
	}
}

// MatchesTime reports whether every field of the expression matches t.
// All five fields must match, including both day-of-month and weekday.
func (e Expression) MatchesTime(t time.Time) bool {
	return Matches(e.Minute, t.Minute()) &&
		Matches(e.Hour, t.Hour()) &&
		Matches(e.DayOfMonth, t.Day()) &&
		Matches(e.Month, int(t.Month())) &&
		Matches(e.Weekday, int(t.Weekday()))
}

// LintStandard cross-checks expr against the standard cron grammar. The
// engine never rejects on this; callers surface it as an advisory warning
// for expressions that lean on the lenient grammar.
func LintStandard(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
