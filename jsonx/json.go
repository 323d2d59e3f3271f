// Package jsonx is the JSON codec for summaries, error payloads and CLI
// output.
package jsonx

import (
	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent is used for human-facing output.
func MarshalIndent(v interface{}) ([]byte, error) {
	return api.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}
