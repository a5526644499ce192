package wizard

import "strings"

// Names of draft fields reported by ValidationError.
const (
	FieldContent = "text or photo"
	FieldPeriod  = "AM/PM"
	FieldHour    = "hour"
	FieldMinute  = "minute"
	FieldDays    = "days"
)

// ValidationError lists the fields a commit is missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing " + strings.Join(e.Missing, ", ")
}
