package storage

import "strings"

// sortColumns whitelists the playlist columns a client may sort by.
var sortColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"createdAt":  "created_at",
	"status":     "status",
	"slug":       "slug",
}

// OrderClause translates a "column" or "column:desc" sort parameter into a
// SQL ORDER BY clause. Unknown columns fall back to created_at descending.
func OrderClause(sort string) string {
	column := "created_at"
	direction := "DESC"

	if sort != "" {
		parts := strings.SplitN(sort, ":", 2)
		if mapped, ok := sortColumns[parts[0]]; ok {
			column = mapped
			direction = "ASC"
		}
		if len(parts) == 2 && strings.EqualFold(parts[1], "desc") {
			direction = "DESC"
		}
	}

	return "ORDER BY " + column + " " + direction
}
