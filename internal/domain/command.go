package domain

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Command is a named device command with its parameters
type Command struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResult is the structured JSON a device command returns
type CommandResult json.RawMessage

// Get queries the result with a gjson path
func (r CommandResult) Get(path string) gjson.Result {
	if len(r) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(r, path)
}

// MarshalJSON keeps the raw payload
func (r CommandResult) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
