package morpho

import (
	"bytes"
	"encoding/json"
)

// BigInt holds the API's BigInt scalar verbatim. The API may render it as a
// JSON string or a bare number; both decode to the same digits.
type BigInt string

func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BigInt(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = BigInt(n.String())
	return nil
}

func (b BigInt) String() string {
	return string(b)
}
