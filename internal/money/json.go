package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalJSON renders Money as a JSON number in major units with two decimals:
//
//	499.00
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Major()), nil
}

// UnmarshalJSON accepts the shapes the backend uses for amounts:
//   - JSON numbers: 499, 499.5
//   - decimal strings: "499.00"
//   - null / "" (decoded as zero)
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("money: invalid JSON: %w", err)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*m = 0
			return nil
		}
	}

	parsed, err := FromMajor(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
