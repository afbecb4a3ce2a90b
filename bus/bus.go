package bus

import (
	"context"
	"errors"
	"strings"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Subjects pulse publishes on.
const (
	// SubjectNotify carries user-facing check notifications.
	SubjectNotify = "pulse.notify"

	// SubjectAlert carries operator alerts: breaker trips and failed cycles.
	SubjectAlert = "pulse.alert"

	// SubjectCycle carries one record per completed cycle.
	SubjectCycle = "pulse.cycle"
)

// Message is a message received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// MessageBus is a fire-and-forget pub/sub transport.
type MessageBus interface {
	// Publish sends data to every subscriber of subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe creates a subscription to subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus.
	Close() error
}

// Subscription is an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	if strings.HasPrefix(subject, ".") || strings.HasSuffix(subject, ".") {
		return ErrInvalidSubject
	}
	return nil
}
