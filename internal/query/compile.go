package query

import (
	"fmt"
	"strings"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/model"
)

// unboundedLimit stands in for a missing limit when only an offset is given.
// SQLite treats a negative LIMIT as having no upper bound.
const unboundedLimit = -1

// Statement is a compiled search ready to run against the store.
type Statement struct {
	SQL  string
	Args []any
}

// Projection columns, in scan order: id, title, capacity, organizer first
// name, organizer last name, accepted attendee count, date, comma-separated
// category ids.
var selectClause = fmt.Sprintf(`SELECT e.id,
       e.title,
       e.capacity,
       COALESCE(u.first_name, ''),
       COALESCE(u.last_name, ''),
       (SELECT COUNT(*) FROM event_attendees a
         WHERE a.event_id = e.id AND a.attendance_status_id = %d) AS num_accepted_attendees,
       e.date,
       COALESCE((SELECT group_concat(c.category_id) FROM event_categories c
                  WHERE c.event_id = e.id), '')
  FROM events e
  LEFT JOIN users u ON u.id = e.organizer_id`, int(model.StatusAccepted))

// Compile lowers spec to a single statement. Category ids are not checked
// here; callers validate them against the category reference first.
func Compile(spec FilterSpec) (Statement, error) {
	sortBy := spec.SortBy
	if sortBy == "" {
		sortBy = DefaultSort
	}
	order, ok := orderBy[sortBy]
	if !ok {
		return Statement{}, apperr.Validation(fmt.Sprintf("invalid sort key %q", sortBy))
	}
	if spec.Limit != nil && *spec.Limit < 0 {
		return Statement{}, apperr.Validation("count must not be negative")
	}
	if spec.Offset != nil && *spec.Offset < 0 {
		return Statement{}, apperr.Validation("startIndex must not be negative")
	}

	cond, err := Lower(spec.Predicate())
	if err != nil {
		return Statement{}, apperr.Validation(fmt.Sprintf("invalid filter: %v", err))
	}

	var b strings.Builder
	args := append([]any(nil), cond.Params...)

	b.WriteString(selectClause)
	if cond.Clause != "" {
		b.WriteString("\n WHERE ")
		b.WriteString(cond.Clause)
	}
	b.WriteString("\n ORDER BY ")
	b.WriteString(order)
	b.WriteString(", e.id ASC")

	switch {
	case spec.Limit != nil:
		b.WriteString("\n LIMIT ?")
		args = append(args, *spec.Limit)
	case spec.Offset != nil:
		b.WriteString("\n LIMIT ?")
		args = append(args, unboundedLimit)
	}
	if spec.Offset != nil {
		b.WriteString(" OFFSET ?")
		args = append(args, *spec.Offset)
	}

	return Statement{SQL: b.String(), Args: args}, nil
}
