// Package checker is the multi-relay event inspector: it fans one session
// per registered relay out over the current target event, keeps one state
// record per relay, memoizes the first copy of the event any relay serves,
// and resolves the author's profile and declared write relays.
package checker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"

	"checknostr/engine/codec"
	"checknostr/engine/library"
	"checknostr/messaging/relays"
)

type Options struct {
	// Bootstrap is the initial registry and the relay set the resolver
	// queries for profiles and relay lists.
	Bootstrap []string
	Dial      relays.Dialer
	AutoQuery bool
	Debounce  time.Duration
	// SessionTimeout bounds one existence check. 0 means a silent relay
	// holds its session open forever.
	SessionTimeout time.Duration
	// ResolverTimeout bounds each sequential profile/outbox fetch.
	ResolverTimeout time.Duration
	// ResetRelaysOnAuthorChange throws away manually added relays whenever
	// the author key changes, so the registry ends up as bootstrap set plus
	// discovered write relays.
	ResetRelaysOnAuthorChange bool
}

// round owns the cancellation scope for one fan-out of sessions. A new
// round cancels and drains the previous one before any session starts, so
// two sessions can never race on one relay's state slot.
type round struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Checker struct {
	mu   deadlock.Mutex
	opts Options

	// queryMu serializes round handovers: teardown of the previous round and
	// installation of the next one must never interleave, or two sessions
	// could race on one relay's state slot.
	queryMu deadlock.Mutex

	// lifetime scope; cancelled by Stop so resolver and publish fetches
	// cannot outlive the checker
	ctx    context.Context
	cancel context.CancelFunc

	addresses  []string
	discovered []string // write relays added by the last outbox merge
	states     map[string]*RelayState

	target    library.Sha256
	targetErr string

	// canonical is set exactly once per target: the first copy of the event
	// any relay serves. Kept around so it can be republished.
	canonical *nostr.Event

	author     library.Account
	authorErr  string
	profile    *library.Profile
	resolveGen int

	round    *round
	debounce *time.Timer

	work sync.WaitGroup
}

func New(opts Options) *Checker {
	if opts.Dial == nil {
		opts.Dial = relays.Connect
	}
	c := &Checker{opts: opts}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.addresses = relays.Uniq(opts.Bootstrap)
	c.states = Reconcile(nil, c.addresses)
	return c
}

// SetTarget points the checker at a new event, given as hex-64, note1 or
// nevent1. A changed target throws away every relay's previous result and
// the canonical event. Invalid input blocks queries but leaves previously
// collected results on display.
func (c *Checker) SetTarget(input string) error {
	if strings.TrimSpace(input) == "" {
		c.mu.Lock()
		c.target = ""
		c.targetErr = ""
		c.canonical = nil
		c.mu.Unlock()
		return nil
	}
	id, err := codec.EventID(input)
	if err != nil {
		c.mu.Lock()
		c.target = ""
		c.targetErr = err.Error()
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	if id == c.target {
		c.targetErr = ""
		c.mu.Unlock()
		c.maybeAutoQuery()
		return nil
	}
	c.target = id
	c.targetErr = ""
	c.canonical = nil
	c.states = Reconcile(nil, c.addresses)
	c.mu.Unlock()
	c.maybeAutoQuery()
	return nil
}

// AddRelay registers one relay address. Results already collected for other
// relays survive.
func (c *Checker) AddRelay(addr string) {
	na := relays.NormalizeRelayURL(addr)
	if na == "" {
		return
	}
	c.mu.Lock()
	if !slices.Contains(c.addresses, na) {
		c.addresses = append(c.addresses, na)
		c.states = Reconcile(c.states, c.addresses)
	}
	c.mu.Unlock()
	c.maybeAutoQuery()
}

func (c *Checker) RemoveRelay(addr string) {
	na := relays.NormalizeRelayURL(addr)
	c.mu.Lock()
	if i := slices.Index(c.addresses, na); i >= 0 {
		c.addresses = slices.Delete(c.addresses, i, i+1)
		c.discovered = slices.DeleteFunc(slices.Clone(c.discovered), func(d string) bool { return d == na })
		c.states = Reconcile(c.states, c.addresses)
	}
	c.mu.Unlock()
	c.maybeAutoQuery()
}

// SetRelays replaces the whole registry.
func (c *Checker) SetRelays(addrs []string) {
	c.mu.Lock()
	c.addresses = relays.Uniq(addrs)
	c.discovered = nil
	c.states = Reconcile(c.states, c.addresses)
	c.mu.Unlock()
	c.maybeAutoQuery()
}

// Query starts a round of sessions for every relay without a result yet.
// The previous round is cancelled and drained first.
func (c *Checker) Query() {
	c.queryMu.Lock()
	defer c.queryMu.Unlock()
	c.startRound()
}

// Requery throws away every relay's result for the current target and runs
// a fresh round. This is the only way to retry relays that errored.
func (c *Checker) Requery() {
	c.queryMu.Lock()
	defer c.queryMu.Unlock()
	c.teardownRound()
	c.mu.Lock()
	c.states = Reconcile(nil, c.addresses)
	c.mu.Unlock()
	c.startRound()
}

// startRound runs with queryMu held. Every session joins the round's wait
// group before the round becomes visible, so a concurrent teardown can never
// observe an empty group while sessions are still starting.
func (c *Checker) startRound() {
	c.teardownRound()
	c.mu.Lock()
	if c.target == "" || len(c.addresses) == 0 {
		c.mu.Unlock()
		return
	}
	rt := &round{}
	rt.ctx, rt.cancel = context.WithCancel(c.ctx)
	id := c.target
	var pending []string
	for _, addr := range c.addresses {
		st := c.states[addr]
		if st.finalized() {
			continue
		}
		st.Status = StatusConnecting
		st.Err = ""
		pending = append(pending, addr)
	}
	if len(pending) == 0 {
		c.mu.Unlock()
		return
	}
	rt.wg.Add(len(pending))
	c.work.Add(len(pending))
	c.round = rt
	c.mu.Unlock()
	for _, addr := range pending {
		go c.runSession(rt, addr, id)
	}
}

func (c *Checker) teardownRound() {
	c.mu.Lock()
	rt := c.round
	c.round = nil
	c.mu.Unlock()
	if rt == nil {
		return
	}
	rt.cancel()
	rt.wg.Wait()
}

func (c *Checker) runSession(rt *round, addr string, id library.Sha256) {
	defer c.work.Done()
	defer rt.wg.Done()
	ctx := rt.ctx
	if c.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SessionTimeout)
		defer cancel()
	}
	sess, err := c.opts.Dial(ctx, addr)
	if err != nil {
		if rt.ctx.Err() != nil {
			// superseded round, not a relay failure
			return
		}
		c.update(id, addr, func(st *RelayState) {
			// a failed reconnect must not destroy an earlier result
			st.Status = StatusError
			st.Err = err.Error()
		})
		return
	}
	defer sess.Close()
	c.update(id, addr, func(st *RelayState) { st.Status = StatusOpen })
	ev, err := sess.CheckEvent(ctx, string(id))
	switch {
	case err != nil:
		if rt.ctx.Err() != nil {
			return
		}
		c.update(id, addr, func(st *RelayState) {
			st.Status = StatusError
			st.Err = err.Error()
		})
	case ev != nil:
		c.finalize(id, addr, ev)
	default:
		c.update(id, addr, func(st *RelayState) {
			has := false
			st.HasEvent = &has
			st.Event = nil
			st.Status = StatusClosed
		})
	}
}

// update applies fn to the relay's slot unless the target has moved on or
// the relay was removed while the session ran.
func (c *Checker) update(id library.Sha256, addr string, fn func(*RelayState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target != id {
		return
	}
	st, ok := c.states[addr]
	if !ok {
		return
	}
	fn(st)
}

func (c *Checker) finalize(id library.Sha256, addr string, ev *nostr.Event) {
	var autofill library.Account
	c.mu.Lock()
	if c.target == id {
		if st, ok := c.states[addr]; ok {
			has := true
			st.HasEvent = &has
			st.Event = ev
			st.Status = StatusClosed
		}
		if c.canonical == nil {
			// first writer wins; later arrivals never overwrite it
			c.canonical = ev
			if c.author == "" {
				autofill = ev.PubKey
			}
		}
	}
	c.mu.Unlock()
	if autofill != "" {
		c.SetAuthor(autofill)
	}
}

// Auto query waits for the input to settle before firing, so that a round
// does not start on every keystroke.
func (c *Checker) maybeAutoQuery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opts.AutoQuery {
		return
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	d := c.opts.Debounce
	if d <= 0 {
		d = 400 * time.Millisecond
	}
	c.debounce = time.AfterFunc(d, func() {
		c.mu.Lock()
		ok := c.target != ""
		c.mu.Unlock()
		if ok {
			c.Query()
		}
	})
}

func (c *Checker) ToggleAutoQuery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.AutoQuery = !c.opts.AutoQuery
	if !c.opts.AutoQuery && c.debounce != nil {
		c.debounce.Stop()
	}
	return c.opts.AutoQuery
}

// Wait blocks until every outstanding session, resolver and publish has
// finished. Used by tests and at shutdown.
func (c *Checker) Wait() {
	c.work.Wait()
}

// Stop cancels the current round, abandons any in-flight resolver work and
// drains everything. Fetches running without a timeout are unblocked by the
// lifetime cancel.
func (c *Checker) Stop() {
	c.mu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.resolveGen++
	c.mu.Unlock()
	c.cancel()
	c.queryMu.Lock()
	c.teardownRound()
	c.queryMu.Unlock()
	c.work.Wait()
}

// Relays returns a copy of every relay's state in registry order.
func (c *Checker) Relays() []RelayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RelayState, 0, len(c.addresses))
	for _, addr := range c.addresses {
		if st, ok := c.states[addr]; ok {
			out = append(out, st.clone())
		}
	}
	return out
}

// Addresses returns the registry's normalized address list.
func (c *Checker) Addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.addresses)
}

// Canonical returns the retained copy of the target event, if any relay has
// served one.
func (c *Checker) Canonical() *nostr.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canonical
}

// Target returns the current raw event id and the last input error.
func (c *Checker) Target() (library.Sha256, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.targetErr
}

// Author returns the current author key and the last decode error.
func (c *Checker) Author() (library.Account, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.author, c.authorErr
}

// CurrentProfile returns the resolved profile for the current author.
func (c *Checker) CurrentProfile() (library.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return library.Profile{}, false
	}
	return *c.profile, true
}
