package core

import "context"

// DB is the subset of *sql.DB needed to check and close a connection pool.
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// MapOrderings translates public ordering fields to column names, dropping unknown fields.
func MapOrderings(ordering []DBOrdering, columns map[string]string) []DBOrdering {
	if len(ordering) == 0 {
		return nil
	}
	mapped := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := columns[ord.Field]; ok {
			mapped = append(mapped, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return mapped
}
