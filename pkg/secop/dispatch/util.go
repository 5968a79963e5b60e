package dispatch

import (
	"encoding/json"
	"time"
)

func unmarshalPayload(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
