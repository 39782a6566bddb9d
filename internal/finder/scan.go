package finder

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// scanMatches reads result rows by column name. Score columns are summed
// into Match.Score. The second return value is the windowed total, or -1
// when the query did not select one or returned no rows.
func scanMatches(rows pgx.Rows) ([]Match, int, error) {
	defer rows.Close()
	fds := rows.FieldDescriptions()
	total := -1
	var out []Match
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, -1, err
		}
		var m Match
		for i, fd := range fds {
			if i >= len(vals) {
				break
			}
			switch name := fd.Name; {
			case name == "id":
				m.ID = toInt64(vals[i])
			case name == "parent_id":
				m.ParentID = toInt64(vals[i])
			case name == "templates_id":
				m.TemplateID = toInt64(vals[i])
			case name == "_total":
				total = int(toInt64(vals[i]))
			case strings.HasPrefix(name, "_score"):
				m.Score += toFloat64(vals[i])
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, err
	}
	return out, total, nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}
