package topicmgr

import "time"

// Topic is a registered pubsub topic.
type Topic interface {
	// Name returns the unique string identifier for this topic
	Name() string

	// Namespace returns the group the topic belongs to, e.g. "room" or "presence"
	Namespace() string

	// Room returns the chat room the topic carries events for
	Room() string

	// Description returns human-readable documentation
	Description() string
}

// TypedTopic is the standard Topic implementation.
type TypedTopic struct {
	name        string
	namespace   string
	room        string
	description string
}

// Compile-time interface compliance check
var _ Topic = (*TypedTopic)(nil)

// TopicConfig holds configuration for creating a new topic
type TopicConfig struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Room        string `json:"room"`
	Description string `json:"description"`
}

// Define creates a topic from its configuration. It does not register it.
func Define(config TopicConfig) Topic {
	return &TypedTopic{
		name:        config.Name,
		namespace:   config.Namespace,
		room:        config.Room,
		description: config.Description,
	}
}

func (t *TypedTopic) Name() string        { return t.name }
func (t *TypedTopic) Namespace() string   { return t.namespace }
func (t *TypedTopic) Room() string        { return t.room }
func (t *TypedTopic) Description() string { return t.description }

// String returns the topic name for easy debugging
func (t *TypedTopic) String() string {
	return t.name
}

// RegistryEntry represents a topic entry in the registry with metadata
type RegistryEntry struct {
	Topic        Topic     `json:"-"`
	Name         string    `json:"name"`
	Namespace    string    `json:"namespace"`
	Room         string    `json:"room"`
	Description  string    `json:"description"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// TopicError represents structured errors in the topic management system
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// ErrorType defines the type of topic management error
type ErrorType string

const (
	ErrorDuplicateRegistration ErrorType = "duplicate_registration"
	ErrorValidationFailed      ErrorType = "validation_failed"
	ErrorConflictingTopic      ErrorType = "conflicting_topic"
)

// Error implements the error interface
func (e *TopicError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TopicError) Unwrap() error {
	return e.Cause
}
