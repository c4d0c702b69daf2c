package bootstrap

import (
	"errors"
	"fmt"
)

// StudyName is the name of the study this add-on enrolls users in.
const StudyName = "shield-study-example"

// Branch is one arm of a study. Weight is relative to the other branches.
type Branch struct {
	Name   string `json:"name" yaml:"name"`
	Weight int    `json:"weight" yaml:"weight"`
}

// StudyConfig is handed to the study runtime at startup. Branch order is
// significant to the runtime and is preserved.
type StudyConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Branches []Branch `json:"branches" yaml:"branches"`
}

// DefaultStudy returns the add-on's static study configuration.
func DefaultStudy() StudyConfig {
	return StudyConfig{
		Name: StudyName,
		Branches: []Branch{
			{Name: "control", Weight: 1},
			{Name: "dogs", Weight: 1},
			{Name: "cats", Weight: 2},
		},
	}
}

// Validate checks that the study is named, has at least one branch, and
// that branch names are unique with positive weights.
func (c StudyConfig) Validate() error {
	if c.Name == "" {
		return errors.New("study name is required")
	}
	if len(c.Branches) == 0 {
		return fmt.Errorf("study %q has no branches", c.Name)
	}

	seen := make(map[string]bool, len(c.Branches))
	for i, b := range c.Branches {
		if b.Name == "" {
			return fmt.Errorf("study %q: branch %d has no name", c.Name, i)
		}
		if seen[b.Name] {
			return fmt.Errorf("study %q: duplicate branch %q", c.Name, b.Name)
		}
		seen[b.Name] = true
		if b.Weight <= 0 {
			return fmt.Errorf("study %q: branch %q must have a positive weight, got %d", c.Name, b.Name, b.Weight)
		}
	}
	return nil
}

// Clone returns a deep copy, so the runtime cannot mutate the static
// configuration.
func (c StudyConfig) Clone() StudyConfig {
	c.Branches = append([]Branch(nil), c.Branches...)
	return c
}
