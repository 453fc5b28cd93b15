package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/eventhub/internal/database"
)

// Condition is a SQL WHERE clause fragment with its positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Predicate is a node of the search filter tree.
type Predicate interface {
	lower() (Condition, error)
}

// Lower translates p into a Condition. A nil predicate or an empty
// conjunction lowers to an empty Condition.
func Lower(p Predicate) (Condition, error) {
	if p == nil {
		return Condition{}, nil
	}
	return p.lower()
}

// TextContains matches events whose title or description contains Query,
// ignoring case.
type TextContains struct {
	Query string
}

func (t TextContains) lower() (Condition, error) {
	pattern := "%" + escapeLike(database.Fold(t.Query)) + "%"
	return Condition{
		Clause: `(casefold(e.title) LIKE ? ESCAPE '\' OR casefold(e.description) LIKE ? ESCAPE '\')`,
		Params: []any{pattern, pattern},
	}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// AnyCategory matches events linked to at least one of IDs.
type AnyCategory struct {
	IDs []int64
}

func (a AnyCategory) lower() (Condition, error) {
	if len(a.IDs) == 0 {
		return Condition{}, fmt.Errorf("category filter requires at least one id")
	}
	params := make([]any, len(a.IDs))
	for i, id := range a.IDs {
		params[i] = id
	}
	return Condition{
		Clause: fmt.Sprintf(
			"EXISTS (SELECT 1 FROM event_categories ec WHERE ec.event_id = e.id AND ec.category_id IN (%s))",
			placeholders(len(a.IDs)),
		),
		Params: params,
	}, nil
}

// OrganizerIs matches events owned by ID.
type OrganizerIs struct {
	ID int64
}

func (o OrganizerIs) lower() (Condition, error) {
	return Condition{Clause: "e.organizer_id = ?", Params: []any{o.ID}}, nil
}

// Op is a comparison operator usable in Compare.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// fieldColumns maps filterable field names to event columns.
var fieldColumns = map[string]string{
	"capacity":     "e.capacity",
	"fee":          "e.fee",
	"is_online":    "e.is_online",
	"date":         "e.date",
	"organizer_id": "e.organizer_id",
}

// Compare matches events whose Field stands in relation Op to Value.
type Compare struct {
	Field string
	Op    Op
	Value any
}

func (c Compare) lower() (Condition, error) {
	column, ok := fieldColumns[c.Field]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", c.Field)
	}
	if !c.Op.valid() {
		return Condition{}, fmt.Errorf("unsupported operator: %s", c.Op)
	}

	value, err := columnValue(c.Field, c.Value)
	if err != nil {
		return Condition{}, err
	}

	return Condition{
		Clause: fmt.Sprintf("%s %s ?", column, c.Op),
		Params: []any{value},
	}, nil
}

// columnValue converts a filter value to the representation stored in the
// column for field.
func columnValue(field string, v any) (any, error) {
	switch field {
	case "date":
		switch t := v.(type) {
		case time.Time:
			return database.FormatTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp format: %s", t)
			}
			return database.FormatTime(parsed), nil
		}
		return nil, fmt.Errorf("date must be compared with a timestamp")
	case "is_online":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("is_online must be compared with a boolean")
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case "capacity", "organizer_id":
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case uint64:
			return int64(n), nil
		}
		return nil, fmt.Errorf("%s must be compared with an integer", field)
	case "fee":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
		return nil, fmt.Errorf("fee must be compared with a number")
	}
	return nil, fmt.Errorf("unknown field: %s", field)
}

// And matches when every child matches. An empty And matches everything.
type And []Predicate

func (a And) lower() (Condition, error) {
	return join(a, " AND ")
}

// Or matches when any child matches.
type Or []Predicate

func (o Or) lower() (Condition, error) {
	if len(o) == 0 {
		return Condition{}, fmt.Errorf("OR requires at least one argument")
	}
	return join(o, " OR ")
}

func join(children []Predicate, sep string) (Condition, error) {
	var clauses []string
	var params []any
	for _, child := range children {
		c, err := Lower(child)
		if err != nil {
			return Condition{}, err
		}
		if c.Clause == "" {
			continue
		}
		clauses = append(clauses, c.Clause)
		params = append(params, c.Params...)
	}
	switch len(clauses) {
	case 0:
		return Condition{}, nil
	case 1:
		return Condition{Clause: clauses[0], Params: params}, nil
	}
	return Condition{
		Clause: "(" + strings.Join(clauses, sep) + ")",
		Params: params,
	}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
