package validation

import (
	"fmt"
	"strconv"
	"strings"
)

// AllowedDays are the window sizes (and offsets) accepted by the statistics API.
var AllowedDays = []int{0, 7, 30, 90, 180, 365}

// SortColumns are the columns the top-ports ranking may be ordered by.
// Each may be prefixed with "-" for descending order.
var SortColumns = []string{"port", "total_count", "req_count"}

// Check is a deferred validation returning whether the value is valid and,
// if not, the message to report to the caller.
type Check func() (bool, string)

// Chain runs every check in order and returns the first failure.
// It returns (true, "") when all checks pass.
func Chain(checks ...Check) (bool, string) {
	for _, check := range checks {
		if ok, msg := check(); !ok {
			return false, msg
		}
	}
	return true, ""
}

// ValidateStatsDays checks that value is an integer from AllowedDays.
func ValidateStatsDays(value string) (bool, string) {
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false, notAnInteger(value)
	}
	for _, allowed := range AllowedDays {
		if days == allowed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("'%s' is an invalid value. Allowed values are: %s", value, formatInts(AllowedDays))
}

// ValidateInt checks that value parses as a non-negative integer.
func ValidateInt(value string) (bool, string) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false, notAnInteger(value)
	}
	if n < 0 {
		return false, fmt.Sprintf("Received '%s'. Expecting a non-negative integer.", value)
	}
	return true, ""
}

// ValidateColumns checks that every column, with an optional "-" prefix, is a known sort column.
func ValidateColumns(columns []string) (bool, string) {
	for _, column := range columns {
		if !contains(SortColumns, strings.TrimPrefix(column, "-")) {
			return false, fmt.Sprintf("'%s' is an invalid column. Allowed columns are: %s (prefix with '-' for descending order)",
				column, formatStrings(SortColumns))
		}
	}
	return true, ""
}

// ValidateUniqueColumns checks that no column is named twice, ignoring sort direction.
func ValidateUniqueColumns(columns []string) (bool, string) {
	seen := make(map[string]bool, len(columns))
	for _, column := range columns {
		name := strings.TrimPrefix(column, "-")
		if seen[name] {
			return false, fmt.Sprintf("Column '%s' is repeated. Received: %s", name, formatStrings(columns))
		}
		seen[name] = true
	}
	return true, ""
}

// ValidateFacets checks that every requested facet name is in allowed.
func ValidateFacets(names []string, allowed []string) (bool, string) {
	for _, name := range names {
		if !contains(allowed, name) {
			return false, fmt.Sprintf("'%s' is an invalid criteria. Allowed values are: %s", name, formatStrings(allowed))
		}
	}
	return true, ""
}

// SplitList splits a comma-separated query value, dropping blanks.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func notAnInteger(value string) string {
	return fmt.Sprintf("Received '%s'. Expecting an integer.", value)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func formatInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatStrings(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
