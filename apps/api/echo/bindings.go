package echoapi

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/prepcards/core"
)

const orderingParam = "ordering"

// Ordering is bound from `?ordering=field,-field`. A "-" prefix sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the ordering query param. Blank entries are skipped; a bare "-" or a repeated field is invalid.
// Field names are checked against the sortable columns by the repositories.
func (ord *Ordering) Bind(ctx echo.Context) error {
	val := ctx.QueryParam(orderingParam)
	if strings.TrimSpace(val) == "" {
		return nil
	}

	seen := make(map[string]bool)
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimSpace(strings.TrimPrefix(field, "-"))
		if field == "" {
			return orderingError("missing field after \"-\"")
		}
		if seen[field] {
			return orderingError(fmt.Sprintf("%q given more than once", field))
		}
		seen[field] = true
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}

func orderingError(msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: orderingParam, Error: msg})
}
