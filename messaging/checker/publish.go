package checker

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"checknostr/engine/library"
	"checknostr/messaging/relays"
)

// PublishTo republishes the retained canonical event to one relay. The
// guards run before any network action: there must be a valid target, a
// fetched copy of it, and the relay must neither hold the event already nor
// have a publish in flight.
func (c *Checker) PublishTo(addr string) error {
	na := relays.NormalizeRelayURL(addr)
	c.mu.Lock()
	if err := c.publishGuardLocked(na); err != nil {
		c.mu.Unlock()
		return err
	}
	st := c.states[na]
	st.Publish = Publishing
	st.PublishErr = ""
	ev := *c.canonical
	id := c.target
	c.mu.Unlock()
	c.work.Add(1)
	go c.runPublish(na, id, ev)
	return nil
}

func (c *Checker) publishGuardLocked(na string) error {
	if c.target == "" {
		return errors.New("no valid event id to publish")
	}
	if c.canonical == nil || c.canonical.ID != c.target {
		return errors.New("no fetched copy of the target event to publish")
	}
	st, ok := c.states[na]
	if !ok {
		return fmt.Errorf("%s is not a registered relay", na)
	}
	if st.HasEvent != nil && *st.HasEvent {
		return fmt.Errorf("%s already has the event", na)
	}
	if st.Publish == Publishing {
		return fmt.Errorf("a publish to %s is already in flight", na)
	}
	return nil
}

func (c *Checker) runPublish(addr string, id library.Sha256, ev nostr.Event) {
	defer c.work.Done()
	ctx := c.ctx
	if c.opts.ResolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ResolverTimeout)
		defer cancel()
		sane := library.ValidateSaneExecutionTime()
		defer sane()
	}
	sess, err := c.opts.Dial(ctx, addr)
	if err != nil {
		c.update(id, addr, func(st *RelayState) {
			st.Publish = PublishFailed
			st.PublishErr = err.Error()
		})
		return
	}
	defer sess.Close()
	if err := sess.Publish(ctx, ev); err != nil {
		c.update(id, addr, func(st *RelayState) {
			st.Publish = PublishFailed
			st.PublishErr = err.Error()
		})
		return
	}
	c.update(id, addr, func(st *RelayState) {
		st.Publish = PublishSuccess
		// the relay demonstrably holds the event now
		has := true
		st.HasEvent = &has
		st.Event = &ev
	})
}
