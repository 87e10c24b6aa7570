package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

var (
	orderingParam = "ordering"

	errInvalidInteger = "must be an integer"
	errInvalidDate    = "must be a date formatted as YYYY-MM-DD"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryBinder collects the errors of the query params it reads so they can be reported at once.
type queryBinder struct {
	ctx    echo.Context
	fields []core.FieldError
}

func newQueryBinder(ctx echo.Context) *queryBinder {
	return &queryBinder{ctx: ctx}
}

func (b *queryBinder) Int(name string) int {
	val := strings.TrimSpace(b.ctx.QueryParam(name))
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		b.fields = append(b.fields, core.FieldError{Field: name, Error: errInvalidInteger})
	}
	return i
}

func (b *queryBinder) NullInt64(name string) null.Int64 {
	val := strings.TrimSpace(b.ctx.QueryParam(name))
	if val == "" {
		return null.Int64{}
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		b.fields = append(b.fields, core.FieldError{Field: name, Error: errInvalidInteger})
		return null.Int64{}
	}
	return null.Int64From(i)
}

func (b *queryBinder) Date(name string) core.Date {
	val := strings.TrimSpace(b.ctx.QueryParam(name))
	if val == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(val)
	if err != nil {
		b.fields = append(b.fields, core.FieldError{Field: name, Error: errInvalidDate})
	}
	return d
}

func (b *queryBinder) String(name string) string {
	return core.CleanString(b.ctx.QueryParam(name))
}

func (b *queryBinder) Err() error {
	if len(b.fields) == 0 {
		return nil
	}
	return core.NewValidationError(nil, b.fields...)
}

// paramID reads a positive integer path param. Anything else is a 404.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}
