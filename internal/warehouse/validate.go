package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// allowedPrefixes are the only statement kinds the warehouse will run.
var allowedPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE"}

// forbiddenKeywords are DDL/DML operations rejected anywhere in the query.
var forbiddenKeywords = []string{
	"DELETE", "UPDATE", "INSERT", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "EXECUTE",
}

var forbiddenRe = regexp.MustCompile(`\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// Validate checks a query for read-only safety. It is applied both at
// alert-definition time and before execution.
func Validate(query string) error {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if upper == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}

	allowed := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: only SELECT, WITH, SHOW, and DESCRIBE queries are allowed", ErrInvalidQuery)
	}

	if m := forbiddenRe.FindString(upper); m != "" {
		return fmt.Errorf("%w: forbidden operation: %s", ErrInvalidQuery, m)
	}

	if strings.Count(query, "(") != strings.Count(query, ")") {
		return fmt.Errorf("%w: unmatched parentheses", ErrInvalidQuery)
	}
	if strings.Count(query, "'")%2 != 0 {
		return fmt.Errorf("%w: unmatched quotes", ErrInvalidQuery)
	}

	return nil
}

// EnsureLimit appends a safety row limit to SELECT queries that carry
// neither LIMIT nor TOP. The returned text is what gets executed and
// cached, so the suffix participates in the cache key.
func EnsureLimit(query string, maxRows int) string {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT") {
		return query
	}
	if strings.Contains(upper, "LIMIT") || strings.Contains(upper, "TOP") {
		return query
	}
	return fmt.Sprintf("%s LIMIT %d", query, maxRows)
}

// Prepare validates the query and applies the safety limit.
func Prepare(query string, maxRows int) (string, error) {
	if err := Validate(query); err != nil {
		return "", err
	}
	return EnsureLimit(query, maxRows), nil
}
