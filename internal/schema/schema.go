// Package schema implements typed validation and normalization of field
// values. Validation is pure: it never touches storage. List keys are
// checked for shape here and resolved against the administered item set by
// the caller.
package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rivet-tracker/rivet/internal/types"
)

// Default length bounds applied when the field does not set max_length
const (
	DefaultStringMaxLength = 255
	DefaultTextMaxLength   = 20000
)

// MaxDurationHours bounds the hour component of duration values
const MaxDurationHours = 999999

// Value is the normalized result of validating one raw field value.
// Number carries inline scalars (checkbox 0/1, integer, date as unix
// seconds, duration as total minutes, issue-id, list key); Text carries the
// dedup key for string, text and decimal fields.
type Value struct {
	Type   types.FieldType
	Number int64
	Text   string
}

// Validate checks raw against the field's type and constraints and returns
// the normalized value. Empty raw input never reaches Validate: absence is
// handled by the caller (required-field enforcement is contextual, see
// RequiredMissing). loc is the acting user's timezone; date values are
// normalized to midnight in that zone at write time so the literal date
// round-trips for any later reader using the same zone.
func Validate(field *types.Field, raw string, loc *time.Location) (Value, error) {
	v := Value{Type: field.Type}

	switch field.Type {
	case types.FieldString, types.FieldText:
		maxLen := field.MaxLength
		if maxLen == 0 {
			if field.Type == types.FieldString {
				maxLen = DefaultStringMaxLength
			} else {
				maxLen = DefaultTextMaxLength
			}
		}
		if len(raw) > maxLen {
			return v, fmt.Errorf("value exceeds maximum length of %d characters (got %d)", maxLen, len(raw))
		}
		v.Text = raw
		return v, nil

	case types.FieldCheckbox:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "on":
			v.Number = 1
		case "false", "0", "no", "off":
			v.Number = 0
		default:
			return v, fmt.Errorf("invalid checkbox value %q (expected true or false)", raw)
		}
		return v, nil

	case types.FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, fmt.Errorf("invalid integer value %q", raw)
		}
		if err := checkRange(field, n); err != nil {
			return v, err
		}
		v.Number = n
		return v, nil

	case types.FieldDecimal:
		cents, err := parseDecimal(raw)
		if err != nil {
			return v, err
		}
		if field.MinValue != nil && cents < *field.MinValue*100 {
			return v, fmt.Errorf("value must be at least %d", *field.MinValue)
		}
		if field.MaxValue != nil && cents > *field.MaxValue*100 {
			return v, fmt.Errorf("value must be at most %d", *field.MaxValue)
		}
		v.Text = FormatDecimal(cents)
		return v, nil

	case types.FieldDate:
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return v, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw)
		}
		v.Number = t.Unix()
		return v, nil

	case types.FieldDuration:
		minutes, err := ParseDuration(raw)
		if err != nil {
			return v, err
		}
		v.Number = minutes
		return v, nil

	case types.FieldList:
		key, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, fmt.Errorf("invalid list value %q (expected an option key)", raw)
		}
		v.Number = key
		return v, nil

	case types.FieldIssueID:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return v, fmt.Errorf("invalid issue reference %q", raw)
		}
		v.Number = id
		return v, nil
	}

	return v, fmt.Errorf("unknown field type %q", field.Type)
}

func checkRange(field *types.Field, n int64) error {
	if field.MinValue != nil && n < *field.MinValue {
		return fmt.Errorf("value must be at least %d", *field.MinValue)
	}
	if field.MaxValue != nil && n > *field.MaxValue {
		return fmt.Errorf("value must be at most %d", *field.MaxValue)
	}
	return nil
}

// parseDecimal parses a fixed-precision decimal with at most two fraction
// digits and returns the value in hundredths.
func parseDecimal(raw string) (int64, error) {
	s := raw
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("invalid decimal value %q (at most 2 decimal places)", raw)
	}
	// Only digits may remain after the single optional leading sign, so
	// "--1" and "1.-5" are rejected rather than silently reinterpreted.
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid decimal value %q", raw)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal value %q", raw)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid decimal value %q", raw)
		}
		if len(frac) == 1 {
			f *= 10
		}
	}
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatDecimal renders hundredths as the canonical two-place string used
// as the dedup key ("3.50", "-0.25").
func FormatDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseDuration parses "H:MM" formatted text into total minutes. Hours may
// exceed 24 but are bounded by MaxDurationHours as a sanity limit.
func ParseDuration(raw string) (int64, error) {
	i := strings.IndexByte(raw, ':')
	if i <= 0 || i != len(raw)-3 {
		return 0, fmt.Errorf("invalid duration %q (expected H:MM)", raw)
	}
	hours, err := strconv.ParseInt(raw[:i], 10, 64)
	if err != nil || hours < 0 || hours > MaxDurationHours {
		return 0, fmt.Errorf("invalid duration %q (hours out of range)", raw)
	}
	minutes, err := strconv.ParseInt(raw[i+1:], 10, 64)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid duration %q (minutes must be 00-59)", raw)
	}
	return hours*60 + minutes, nil
}

// FormatDuration renders total minutes back to "H:MM"
func FormatDuration(minutes int64) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// FormatDate renders a stored date value (unix seconds) as the literal date
// in the reader's timezone.
func FormatDate(unix int64, loc *time.Location) string {
	return time.Unix(unix, 0).In(loc).Format("2006-01-02")
}

// RequiredMissing returns the required fields of the target state that have
// neither an existing non-null value on the issue nor a value supplied with
// the current command, in position order. This is the contextual
// required-field rule: requiredness binds to the state being entered, and a
// value retained from a previous visit to a state sharing the field
// satisfies it.
func RequiredMissing(w *types.Workflow, targetStateID int64, existing map[int64]int64, supplied map[int64]string) []*types.Field {
	var missing []*types.Field
	for _, f := range w.StateFields(targetStateID) {
		if !f.Required || f.Type == types.FieldCheckbox {
			continue
		}
		if _, ok := existing[f.ID]; ok {
			continue
		}
		if raw, ok := supplied[f.ID]; ok && raw != "" {
			continue
		}
		missing = append(missing, f)
	}
	return missing
}
