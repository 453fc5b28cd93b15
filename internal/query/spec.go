// Package query compiles a validated event search into a single
// parameterized SQL statement. Filters are expressed as Predicate values and
// lowered to SQL in one place, so no caller input is ever spliced into the
// statement text.
package query

import (
	"fmt"
	"strings"

	"github.com/dukerupert/eventhub/internal/apperr"
)

type SortKey string

const (
	SortAlphabeticalAsc  SortKey = "ALPHABETICAL_ASC"
	SortAlphabeticalDesc SortKey = "ALPHABETICAL_DESC"
	SortCapacityAsc      SortKey = "CAPACITY_ASC"
	SortCapacityDesc     SortKey = "CAPACITY_DESC"
	SortAttendeesAsc     SortKey = "ATTENDEES_ASC"
	SortAttendeesDesc    SortKey = "ATTENDEES_DESC"
	SortDateAsc          SortKey = "DATE_ASC"
	SortDateDesc         SortKey = "DATE_DESC"
)

// DefaultSort applies when a search names no sort key.
const DefaultSort = SortDateDesc

var orderBy = map[SortKey]string{
	SortAlphabeticalAsc:  "casefold(e.title) ASC",
	SortAlphabeticalDesc: "casefold(e.title) DESC",
	SortCapacityAsc:      "e.capacity ASC",
	SortCapacityDesc:     "e.capacity DESC",
	SortAttendeesAsc:     "num_accepted_attendees ASC",
	SortAttendeesDesc:    "num_accepted_attendees DESC",
	SortDateAsc:          "e.date ASC",
	SortDateDesc:         "e.date DESC",
}

// ParseSortKey accepts a sort key in any case. The empty string yields
// DefaultSort.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultSort, nil
	}
	k := SortKey(s)
	if _, ok := orderBy[k]; !ok {
		return "", apperr.Validation(fmt.Sprintf("invalid sort key %q", s))
	}
	return k, nil
}

// FilterSpec is a normalized search request. Zero values impose no
// restriction; present fields are AND-combined.
type FilterSpec struct {
	Text        string
	CategoryIDs []int64
	OrganizerID *int64
	SortBy      SortKey
	Limit       *int
	Offset      *int

	// Where is an additional predicate, typically parsed from an AIP-160
	// filter expression. It is AND-combined with the fields above.
	Where Predicate
}

// Predicate returns the conjunction of every restriction in the filter.
func (s FilterSpec) Predicate() Predicate {
	var and And
	if strings.TrimSpace(s.Text) != "" {
		and = append(and, TextContains{Query: s.Text})
	}
	if len(s.CategoryIDs) > 0 {
		and = append(and, AnyCategory{IDs: s.CategoryIDs})
	}
	if s.OrganizerID != nil {
		and = append(and, OrganizerIs{ID: *s.OrganizerID})
	}
	if s.Where != nil {
		and = append(and, s.Where)
	}
	return and
}

// ValidateCategories fails with a validation error when any id in the filter
// is absent from valid.
func (s FilterSpec) ValidateCategories(valid map[int64]struct{}) error {
	for _, id := range s.CategoryIDs {
		if _, ok := valid[id]; !ok {
			return apperr.Validation("one or more invalid category IDs")
		}
	}
	return nil
}
