package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// globalRange is a selected span in the global page numbering that runs
// across the concatenated documents, 1-based inclusive.
type globalRange struct {
	begin int
	end   int
}

// parseSelection parses a selection expression like "4-5,9-10,16-" against
// the given total page count. An empty expression selects every page.
// Ranges must be ascending and disjoint.
func parseSelection(expr string, totalPages int) ([]globalRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		if totalPages == 0 {
			return nil, nil
		}
		return []globalRange{{begin: 1, end: totalPages}}, nil
	}

	var ranges []globalRange
	prevEnd := 0

	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("empty range in selection %q", expr)
		}

		r, err := parseToken(token, totalPages)
		if err != nil {
			return nil, err
		}

		if r.begin <= prevEnd {
			return nil, fmt.Errorf("selection ranges must be ascending and disjoint, got %q", expr)
		}
		prevEnd = r.end
		ranges = append(ranges, r)
	}

	return ranges, nil
}

func parseToken(token string, totalPages int) (globalRange, error) {
	idx := strings.Index(token, "-")
	if idx < 0 {
		page, err := parsePage(token)
		if err != nil {
			return globalRange{}, err
		}
		return boundRange(page, page, totalPages)
	}

	beginStr := strings.TrimSpace(token[:idx])
	endStr := strings.TrimSpace(token[idx+1:])

	begin := 1
	end := totalPages

	var err error
	if beginStr != "" {
		if begin, err = parsePage(beginStr); err != nil {
			return globalRange{}, err
		}
	}
	if endStr != "" {
		if end, err = parsePage(endStr); err != nil {
			return globalRange{}, err
		}
	}

	return boundRange(begin, end, totalPages)
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	return n, nil
}

func boundRange(begin, end, totalPages int) (globalRange, error) {
	if begin > end {
		return globalRange{}, fmt.Errorf("range %d-%d is reversed", begin, end)
	}
	if begin > totalPages {
		return globalRange{}, fmt.Errorf("range %d-%d starts past the last page %d", begin, end, totalPages)
	}
	if end > totalPages {
		end = totalPages
	}
	return globalRange{begin: begin, end: end}, nil
}
