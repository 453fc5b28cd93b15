package query

import (
	"fmt"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/dukerupert/eventhub/internal/apperr"
)

// Declarations returns the field declarations accepted in a search filter
// expression.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("capacity", filtering.TypeInt),
		filtering.DeclareIdent("fee", filtering.TypeFloat),
		filtering.DeclareIdent("is_online", filtering.TypeBool),
		filtering.DeclareIdent("date", filtering.TypeTimestamp),
		filtering.DeclareIdent("organizer_id", filtering.TypeInt),
	)
}

// ParseFilter parses an AIP-160 filter expression into a Predicate. An empty
// expression yields a nil Predicate.
func ParseFilter(filterStr string) (Predicate, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}

	decls, err := Declarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}

	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid filter: %v", err))
	}

	p, err := translateExpr(filter.CheckedExpr.GetExpr())
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid filter: %v", err))
	}
	return p, nil
}

func translateExpr(e *expr.Expr) (Predicate, error) {
	if e == nil {
		return nil, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (Predicate, error) {
	switch call.Function {
	case "_&&_", "AND":
		left, right, err := translatePair(call.Args, "AND")
		if err != nil {
			return nil, err
		}
		return And{left, right}, nil
	case "_||_", "OR":
		left, right, err := translatePair(call.Args, "OR")
		if err != nil {
			return nil, err
		}
		return Or{left, right}, nil
	case "_==_", "=":
		return translateComparison(call.Args, OpEq)
	case "_!=_", "!=":
		return translateComparison(call.Args, OpNe)
	case "_<_", "<":
		return translateComparison(call.Args, OpLt)
	case "_<=_", "<=":
		return translateComparison(call.Args, OpLe)
	case "_>_", ">":
		return translateComparison(call.Args, OpGt)
	case "_>=_", ">=":
		return translateComparison(call.Args, OpGe)
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translatePair(args []*expr.Expr, name string) (Predicate, Predicate, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s requires 2 arguments", name)
	}
	left, err := translateExpr(args[0])
	if err != nil {
		return nil, nil, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func translateComparison(args []*expr.Expr, op Op) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	if _, ok := fieldColumns[field]; !ok {
		return nil, fmt.Errorf("unknown field: %s", field)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}

	return Compare{Field: field, Op: op, Value: value}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	ident, ok := e.ExprKind.(*expr.Expr_IdentExpr)
	if !ok {
		return "", fmt.Errorf("expected identifier, got %T", e.ExprKind)
	}
	return ident.IdentExpr.Name, nil
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected constant, got identifier %s", kind.IdentExpr.Name)
	case *expr.Expr_CallExpr:
		// timestamp("...") in value position
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return kind.Uint64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}
