package script

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a validated script for persistence in the queue and the
// staging workspace.
func Encode(s *Script) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("script: encode: %w", err)
	}
	return data, nil
}
