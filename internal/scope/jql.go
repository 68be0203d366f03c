package scope

import (
	"regexp"
	"strings"
)

var orderByPattern = regexp.MustCompile(`(?i)^order\s+by\b`)

// splitJQL separates a top-level ORDER BY from the filter part of a query.
// It fails when parentheses outside quoted strings do not balance or a
// string is left open, as such a query could close the parentheses that
// bind it to the project restriction.
func splitJQL(jql string) (filter, orderBy string, err error) {
	depth := 0
	orderAt := -1
	var quote rune

	for i := 0; i < len(jql); i++ {
		ch := rune(jql[i])

		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return "", "", QueryError{Query: jql, Reason: "unbalanced ')'"}
			}
		default:
			if depth == 0 && orderAt < 0 && wordStart(jql, i) && orderByPattern.MatchString(jql[i:]) {
				orderAt = i
			}
		}
	}

	if quote != 0 {
		return "", "", QueryError{Query: jql, Reason: "unterminated string"}
	}
	if depth != 0 {
		return "", "", QueryError{Query: jql, Reason: "unbalanced '('"}
	}

	if orderAt < 0 {
		return strings.TrimSpace(jql), "", nil
	}
	return strings.TrimSpace(jql[:orderAt]), strings.TrimSpace(jql[orderAt:]), nil
}

func wordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case ' ', '\t', '\n', '\r', ')':
		return true
	}
	return false
}
