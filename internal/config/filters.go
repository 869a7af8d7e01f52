package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NotificationFilters is the optional YAML file narrowing which notification
// types the trigger subscribes to. An absent file or empty list means the
// "all events" filter.
type NotificationFilters struct {
	Types []string `yaml:"types"`
}

// LoadFilters reads the filter file. A missing path (or empty configured
// path) yields an empty filter set, which callers treat as "all events".
func LoadFilters(path string) (*NotificationFilters, error) {
	if path == "" {
		return &NotificationFilters{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &NotificationFilters{}, nil
		}
		return nil, fmt.Errorf("failed to read filters file: %w", err)
	}

	filters := &NotificationFilters{}
	if err := yaml.Unmarshal(data, filters); err != nil {
		return nil, fmt.Errorf("failed to parse filters file: %w", err)
	}
	return filters, nil
}
