package search

import (
	"regexp"
	"unicode"

	"github.com/forgehq/forge/pkg/orcherr"
)

const defaultMaxResults = 50

// sanitize rejects NUL bytes, control characters, and syntactically invalid
// regex, and fills in defaults, returning the warnings produced along the
// way (§4.8 step 2).
func sanitize(q Query) (Query, []string, error) {
	var warnings []string

	for _, r := range q.Text {
		if r == 0 {
			return Query{}, nil, orcherr.New(orcherr.CodeValidationError, "query text contains a NUL byte")
		}
		if unicode.IsControl(r) && r != '\t' {
			return Query{}, nil, orcherr.New(orcherr.CodeValidationError, "query text contains a control character")
		}
	}

	if q.Regex {
		if _, err := regexp.Compile(q.Text); err != nil {
			return Query{}, nil, orcherr.Wrap(orcherr.CodeValidationError, "invalid regex in query", err)
		}
	}

	if q.MaxResults <= 0 {
		q.MaxResults = defaultMaxResults
		warnings = append(warnings, "max_results defaulted to 50")
	}

	return q, warnings, nil
}
