package contentcore

import (
	"encoding/json"
	"sort"
	"strings"
)

// MatchText reports whether any string value in the encoded attributes
// contains text, ignoring case. Object keys are not searched. An empty text
// matches everything.
func MatchText(encoded []byte, text string) bool {
	if text == "" {
		return true
	}
	var v any
	if err := json.Unmarshal(encoded, &v); err != nil {
		return false
	}
	return matchValue(v, strings.ToLower(text))
}

func matchValue(v any, lowered string) bool {
	switch v := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), lowered)
	case map[string]any:
		for _, child := range v {
			if matchValue(child, lowered) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if matchValue(child, lowered) {
				return true
			}
		}
	}
	return false
}

// PageItems orders matches newest first and cuts the page selected by query.
// Backends that search in process share it so paging behaves the same
// everywhere.
func PageItems[T any](matches []*Item[T], query SearchQuery) *SearchResult[T] {
	query = query.Normalize()

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	result := &SearchResult[T]{Hits: []*Item[T]{}, Total: len(matches)}
	if query.Offset >= len(matches) {
		return result
	}
	end := query.Offset + query.Limit
	if end > len(matches) {
		end = len(matches)
	}
	result.Hits = matches[query.Offset:end]
	return result
}
