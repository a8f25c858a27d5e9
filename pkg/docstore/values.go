package docstore

import (
	"encoding/json"
	"strings"
	"time"
)

// sqlTimeLayout is RFC3339 with a fixed nine-digit fraction. Stored UTC times
// therefore compare lexically in time order.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func canonicalFields(fields Fields, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = canonicalValue(v, now)
	}
	return out
}

// canonicalValue converts v to the shape it takes after a JSON round trip,
// with top-level times rendered in sqlTimeLayout.
func canonicalValue(v any, now time.Time) any {
	switch typed := v.(type) {
	case nil:
		return nil
	case serverTimestamp:
		return now.UTC().Format(sqlTimeLayout)
	case time.Time:
		return typed.UTC().Format(sqlTimeLayout)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.UTC().Format(sqlTimeLayout)
	case string, bool, float64:
		return typed
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// compareValues orders JSON-decoded values. Mixed types order by kind:
// null, booleans, numbers, strings, then everything else.
func compareValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	case nil:
		return 0
	default:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return strings.Compare(string(ja), string(jb))
	}
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
