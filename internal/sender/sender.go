// Package sender defines the pluggable per-channel delivery capability
// and the transient/permanent failure classification the dispatcher's
// retry logic depends on.
package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/paktel/notify-gateway/internal/model"
)

// Result of a successful send.
type Result struct {
	// AwaitsConfirmation is true for channels whose provider confirms
	// delivery asynchronously; the job stays `sent` until then.
	AwaitsConfirmation bool
}

// Sender delivers one rendered message on one channel.
type Sender interface {
	Channel() model.Channel
	Send(ctx context.Context, recipientContact, message string) (Result, error)
}

// Class splits delivery failures into retryable and terminal.
type Class int

const (
	ClassTransient Class = iota // network, 5xx, throttling: retry with backoff
	ClassPermanent              // invalid recipient, 4xx: never retry
)

// SendError carries the failure class alongside the cause.
type SendError struct {
	Class Class
	Err   error
}

func (e *SendError) Error() string {
	if e.Class == ClassPermanent {
		return "permanent: " + e.Err.Error()
	}
	return "transient: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error { return &SendError{Class: ClassTransient, Err: err} }

// Permanent wraps err as a terminal failure.
func Permanent(err error) error { return &SendError{Class: ClassPermanent, Err: err} }

// Transientf is a convenience for formatted transient errors.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf is a convenience for formatted permanent errors.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether err is classified permanent. Unclassified
// errors (timeouts, cancelled contexts, plain errors) count as
// transient: retrying a genuinely broken send is cheaper than silently
// dropping a recoverable one.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class == ClassPermanent
	}
	return false
}

// Registry maps channels to their senders.
type Registry struct {
	senders map[model.Channel]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	m := make(map[model.Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return &Registry{senders: m}
}

func (r *Registry) ForChannel(ch model.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// Channels lists the channels this registry can service.
func (r *Registry) Channels() []model.Channel {
	out := make([]model.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
