package testutil

import "github.com/pbosetti/mads-plugin/params"

// Documents returns generic configuration-shaped values, fresh on every call.
func Documents() []params.Params {
	return []params.Params{
		{"id": 1, "value": 10.0, "name": "alpha", "meta": map[string]any{"unit": "C", "ok": true}},
		{"id": 2, "value": 20.0, "name": "beta", "meta": map[string]any{"unit": "C", "ok": false}},
		{"id": 3, "value": 30.0, "name": "gamma", "meta": map[string]any{"unit": "K", "ok": true}},
		{"id": 4, "value": 40.0, "name": "delta", "meta": map[string]any{"unit": "K", "ok": true}},
	}
}

// TestMessages contains the same documents as JSON lines.
var TestMessages = []string{
	`{"id": 1, "value": 10, "name": "alpha", "meta": {"unit": "C", "ok": true}}`,
	`{"id": 2, "value": 20, "name": "beta", "meta": {"unit": "C", "ok": false}}`,
	`{"id": 3, "value": 30, "name": "gamma", "meta": {"unit": "K", "ok": true}}`,
	`{"id": 4, "value": 40, "name": "delta", "meta": {"unit": "K", "ok": true}}`,
}

// TestBinaryData contains blob payloads.
var TestBinaryData = [][]byte{
	{0x01, 0x02, 0x03, 0x04, 0x05},
	{0x0A, 0x0B, 0x0C, 0x0D, 0x0E},
	{0xFF, 0xFE, 0xFD, 0xFC, 0xFB},
}
