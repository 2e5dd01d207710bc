package topicmgr

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator provides validation for topic definitions
type Validator struct {
	namePattern      *regexp.Regexp
	namespacePattern *regexp.Regexp
}

// NewValidator creates a new topic validator
func NewValidator() *Validator {
	// Hierarchical names: namespace.segment.kind, e.g. room.general.events
	return &Validator{
		namePattern:      regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)*$`),
		namespacePattern: regexp.MustCompile(`^[a-z][a-z0-9]*$`),
	}
}

// ValidateDefinition validates a topic definition
func (v *Validator) ValidateDefinition(topic Topic) error {
	if topic == nil {
		return fmt.Errorf("topic cannot be nil")
	}

	if err := v.ValidateName(topic.Name()); err != nil {
		return fmt.Errorf("invalid topic name: %w", err)
	}

	ns := topic.Namespace()
	if !v.namespacePattern.MatchString(ns) {
		return fmt.Errorf("invalid namespace %q: must be lowercase alphanumeric", ns)
	}
	if !strings.HasPrefix(topic.Name(), ns+".") {
		return fmt.Errorf("topic name must start with its namespace %q", ns)
	}

	if strings.TrimSpace(topic.Room()) == "" {
		return fmt.Errorf("topic room cannot be empty")
	}
	if strings.TrimSpace(topic.Description()) == "" {
		return fmt.Errorf("topic description cannot be empty")
	}
	return nil
}

// ValidateName checks if a topic name follows the naming convention
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > 100 {
		return fmt.Errorf("name too long (max 100 characters)")
	}

	if !v.namePattern.MatchString(name) {
		return fmt.Errorf("name must be lowercase alphanumeric segments separated by dots")
	}

	for _, prefix := range []string{"system.", "internal.", "debug."} {
		if strings.HasPrefix(name, prefix) {
			return fmt.Errorf("name cannot start with reserved prefix: %s", prefix)
		}
	}

	return nil
}
