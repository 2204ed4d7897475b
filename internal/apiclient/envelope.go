package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// page is the DRF pagination envelope.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// decodeList normalizes list endpoints that answer either with a bare array
// or with a paginated {"results": [...]} object. Anything else is an error.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	case '{':
		var p page[T]
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		if p.Results == nil {
			return []T{}, nil
		}
		return p.Results, nil
	default:
		return nil, fmt.Errorf("decode list: unexpected payload starting with %q", trimmed[0])
	}
}

func decodeObject[T any](body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
