package handlers

import (
	"fmt"
	"strings"

	"github.com/ternarybob/orbital/internal/orders"
)

// ParseFilter parses an OData $filter expression of the form
//
//	Field op 'value' [and Field op 'value']...
//
// into the coordinator's filter triples. Only the grammar the queue supports
// is accepted; anything else is an invalid request.
func ParseFilter(raw string) ([]orders.Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	tokens, err := tokenizeFilter(raw)
	if err != nil {
		return nil, err
	}

	var filters []orders.Filter
	i := 0
	for {
		if len(tokens)-i < 3 {
			return nil, &orders.RequestError{Message: fmt.Sprintf("invalid $filter expression %q", raw)}
		}
		filters = append(filters, orders.Filter{
			Field: tokens[i],
			Op:    strings.ToLower(tokens[i+1]),
			Value: tokens[i+2],
		})
		i += 3
		if i == len(tokens) {
			break
		}
		if strings.ToLower(tokens[i]) != "and" {
			return nil, &orders.RequestError{Message: fmt.Sprintf(
				"invalid $filter expression %q: predicates compose with 'and' only", raw)}
		}
		i++
	}
	return filters, nil
}

// tokenizeFilter splits the expression on whitespace, keeping quoted
// literals (with embedded spaces) as single tokens with quotes removed.
func tokenizeFilter(raw string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuote := false

	for _, r := range raw {
		switch {
		case r == '\'':
			if inQuote {
				tokens = append(tokens, current.String())
				current.Reset()
				inQuote = false
			} else {
				if current.Len() > 0 {
					return nil, &orders.RequestError{Message: fmt.Sprintf("invalid $filter expression %q", raw)}
				}
				inQuote = true
			}
		case r == ' ' || r == '\t':
			if inQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, &orders.RequestError{Message: fmt.Sprintf("unterminated literal in $filter expression %q", raw)}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
