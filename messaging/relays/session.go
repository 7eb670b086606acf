package relays

import (
	"context"
	"errors"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
)

// Dialer opens a Session against one relay address. Connect is the
// production dialer; tests substitute their own.
type Dialer func(ctx context.Context, url string) (Session, error)

// Session is one persistent connection to one relay. The query methods are
// one-shot: subscribe, wait for the first matching event or the end of
// stored events, close the subscription.
type Session interface {
	// CheckEvent reports whether the relay holds the event with the given
	// id. A nil event with a nil error means the relay reached end of
	// stored events without serving a match.
	CheckEvent(ctx context.Context, id string) (*nostr.Event, error)
	// FetchFirst returns the first event the relay serves for the filter,
	// or nil on end of stored events.
	FetchFirst(ctx context.Context, f nostr.Filter) (*nostr.Event, error)
	Publish(ctx context.Context, ev nostr.Event) error
	// Close is idempotent.
	Close() error
}

func Connect(ctx context.Context, url string) (Session, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &session{relay: relay}, nil
}

type session struct {
	relay  *nostr.Relay
	mu     deadlock.Mutex
	closed bool
}

func (s *session) CheckEvent(ctx context.Context, id string) (*nostr.Event, error) {
	return s.firstMatch(ctx, nostr.Filter{IDs: []string{id}}, id)
}

func (s *session) FetchFirst(ctx context.Context, f nostr.Filter) (*nostr.Event, error) {
	return s.firstMatch(ctx, f, "")
}

func (s *session) firstMatch(ctx context.Context, f nostr.Filter, id string) (*nostr.Event, error) {
	sub, err := s.relay.Subscribe(ctx, nostr.Filters{f})
	if err != nil {
		return nil, err
	}
	defer sub.Unsub()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return nil, errors.New("relay closed the subscription")
			}
			if id != "" && ev.ID != id {
				continue
			}
			return ev, nil
		case <-sub.EndOfStoredEvents:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *session) Publish(ctx context.Context, ev nostr.Event) error {
	return s.relay.Publish(ctx, ev)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.relay.Close()
}
