package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Input is the "input" field of an embeddings request. SharpAI accepts a
// single string or an array of strings; Input marshals one element as a
// plain string and anything else as an array.
type Input []string

// Inputs builds an Input from its arguments.
func Inputs(s ...string) Input { return Input(s) }

// MarshalJSON implements json.Marshaler.
func (in Input) MarshalJSON() ([]byte, error) {
	if len(in) == 1 {
		return json.Marshal(in[0])
	}
	if in == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(in))
}

// UnmarshalJSON accepts a string, an array of strings or null.
func (in *Input) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*in = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*in = Input{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("input must be a string or an array of strings: %w", err)
	}
	*in = Input(many)
	return nil
}
