package stream

import "encoding/json"

// DecodeFunc parses one transformed line into a record. A nil record
// with a nil error means the line carried no record (JSON null) and is
// skipped.
type DecodeFunc[T any] func(line string) (*T, error)

// JSON decodes line with encoding/json. Field matching is
// case-insensitive, as with any json.Unmarshal into a struct.
func JSON[T any](line string) (*T, error) {
	var v *T
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return nil, err
	}
	return v, nil
}
