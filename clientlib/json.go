package clientlib

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMalformedParameters marks a parse failure of a serialized
// ClientParameters document. It is a data error, distinct from the compile
// errors of the parametrization pass.
var ErrMalformedParameters = errors.New("malformed client parameters")

// Serialize renders the parameters as an indented JSON document.
func Serialize(p *ClientParameters) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client parameters: %w", err)
	}
	return data, nil
}

// Deserialize parses a JSON document produced by Serialize. The schema is
// strict: unknown fields are rejected so version skew surfaces as an error
// instead of silent data loss.
func Deserialize(data []byte) (*ClientParameters, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p ClientParameters
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParameters, err)
	}
	// Reject trailing garbage after the document.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedParameters)
	}
	return &p, nil
}

// Save writes the parameters to a JSON file.
func Save(filepath string, p *ClientParameters) error {
	data, err := Serialize(p)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// Load reads parameters from a JSON file.
func Load(filepath string) (*ClientParameters, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read client parameters file: %w", err)
	}
	return Deserialize(data)
}
