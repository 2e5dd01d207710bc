package topicmgr

import (
	"sync"
)

// Manager validates topics and records them in a Registry.
type Manager struct {
	registry  *Registry
	validator *Validator
	mu        sync.Mutex
}

// NewManager creates a new topic manager with registry and validator
func NewManager() *Manager {
	return &Manager{
		registry:  NewRegistry(),
		validator: NewValidator(),
	}
}

// Register validates and adds a topic. Registering the same name twice is an error.
func (m *Manager) Register(topic Topic) error {
	if err := m.validate(topic); err != nil {
		return err
	}
	return m.registry.Register(topic)
}

// Ensure registers topic unless a topic with the same name exists, and
// returns the registered topic. A name collision between different rooms
// or namespaces is reported as a conflict.
func (m *Manager) Ensure(topic Topic) (Topic, error) {
	if err := m.validate(topic); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.registry.Get(topic.Name()); ok {
		if existing.Room() != topic.Room() || existing.Namespace() != topic.Namespace() {
			return nil, &TopicError{
				Type:    ErrorConflictingTopic,
				Topic:   topic.Name(),
				Message: "topic name already used by room " + existing.Room(),
			}
		}
		return existing, nil
	}
	if err := m.registry.Register(topic); err != nil {
		return nil, err
	}
	return topic, nil
}

// MustRegister registers a topic and panics on failure. Use it for topics
// defined at package init.
func (m *Manager) MustRegister(topic Topic) {
	if err := m.Register(topic); err != nil {
		panic(err)
	}
}

// Get retrieves a topic by name
func (m *Manager) Get(name string) (Topic, bool) {
	return m.registry.Get(name)
}

// List returns all registered topics sorted by name
func (m *Manager) List() []RegistryEntry {
	return m.registry.Entries()
}

// ListByNamespace returns the entries in one namespace
func (m *Manager) ListByNamespace(namespace string) []RegistryEntry {
	var out []RegistryEntry
	for _, e := range m.registry.Entries() {
		if e.Namespace == namespace {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of registered topics
func (m *Manager) Count() int {
	return m.registry.Count()
}

// ValidateTopicName checks if a topic name is valid without creating a topic
func (m *Manager) ValidateTopicName(name string) error {
	return m.validator.ValidateName(name)
}

// Reset clears the registry (primarily for testing)
func (m *Manager) Reset() {
	m.registry.Reset()
}

func (m *Manager) validate(topic Topic) error {
	if err := m.validator.ValidateDefinition(topic); err != nil {
		name := ""
		if topic != nil {
			name = topic.Name()
		}
		return &TopicError{
			Type:    ErrorValidationFailed,
			Topic:   name,
			Message: "topic validation failed",
			Cause:   err,
		}
	}
	return nil
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}
