// Package utils provides parsing and formatting of user-facing issue
// references.
package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRef parses a user-supplied issue reference. Accepted forms are the
// display form "BUG-7" and a bare numeric id "7". The returned prefix is
// empty for bare ids; callers that care should check it against the
// template.
func ParseRef(input string) (prefix string, id int64, err error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", 0, fmt.Errorf("empty issue reference")
	}
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		prefix = s[:i]
		s = s[i+1:]
		if prefix == "" {
			return "", 0, fmt.Errorf("invalid issue reference %q", input)
		}
	}
	id, perr := strconv.ParseInt(s, 10, 64)
	if perr != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid issue reference %q", input)
	}
	return prefix, id, nil
}

// FormatRef renders the display form of an issue reference
func FormatRef(prefix string, id int64) string {
	if prefix == "" {
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s-%d", prefix, id)
}

// ParseRefs parses a list of references, rejecting the whole list on the
// first bad one.
func ParseRefs(inputs []string) ([]int64, error) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		_, id, err := ParseRef(in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
