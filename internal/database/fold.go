package database

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

// FoldFunc is the SQL function that applies Fold to a text value. SQLite's
// own lower() and NOCASE only fold ASCII.
const FoldFunc = "casefold"

// Fold returns the Unicode case folding of s. Text compared in SQL through
// FoldFunc must be folded with Fold on the Go side.
func Fold(s string) string {
	return cases.Fold().String(s)
}

var registerFold = sync.OnceValue(func() error {
	return sqlite.RegisterDeterministicScalarFunction(FoldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case nil:
				return nil, nil
			case string:
				return Fold(v), nil
			case []byte:
				return Fold(string(v)), nil
			default:
				return nil, fmt.Errorf("%s: unsupported argument type %T", FoldFunc, v)
			}
		})
})
