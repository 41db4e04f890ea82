package utils

import (
	"fmt"
)

// Config holds driver configuration for the parametrization pass
type Config struct {
	FunctionName string
	OutputPath   string
	MaxSweeps    int
}

// ValidateConfig validates driver configuration
func ValidateConfig(config *Config) error {
	if config.FunctionName == "" {
		return fmt.Errorf("function name must not be empty")
	}

	if config.MaxSweeps < 0 {
		return fmt.Errorf("sweep bound must not be negative")
	}

	return nil
}
