package checker

import (
	"github.com/nbd-wtf/go-nostr"
)

// Status of one relay's connection within the current query round.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

type PublishStatus string

const (
	PublishIdle    PublishStatus = ""
	Publishing     PublishStatus = "publishing"
	PublishSuccess PublishStatus = "success"
	PublishFailed  PublishStatus = "failed"
)

// RelayState is everything known about one relay for the current target
// event. HasEvent is tri-state: nil until the relay either served the event
// or reached end of stored events without it.
type RelayState struct {
	URL        string
	Status     Status
	HasEvent   *bool
	Event      *nostr.Event
	Err        string
	Publish    PublishStatus
	PublishErr string
}

// finalized relays are skipped by subsequent rounds for the same target.
func (s *RelayState) finalized() bool {
	if s == nil {
		return false
	}
	return s.HasEvent != nil || s.Status == StatusError || s.Status == StatusClosed
}

// clone returns a snapshot safe to hand to callers. Events are never
// mutated, so sharing the pointer is fine.
func (s *RelayState) clone() RelayState {
	out := *s
	if s.HasEvent != nil {
		v := *s.HasEvent
		out.HasEvent = &v
	}
	return out
}
