package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/slices"

	"checknostr/engine/codec"
	"checknostr/engine/library"
	"checknostr/messaging/relays"
)

// SetAuthor points the profile/outbox resolver at a new author. Input is a
// hex-64 pubkey, npub1 or nprofile1; the empty string clears the author and
// profile. A valid new key kicks off resolution in the background; any
// resolution already in flight for a previous key is abandoned.
func (c *Checker) SetAuthor(input string) error {
	if strings.TrimSpace(input) == "" {
		c.mu.Lock()
		c.author = ""
		c.authorErr = ""
		c.profile = nil
		c.resolveGen++
		c.mu.Unlock()
		return nil
	}
	pk, err := codec.PublicKey(input)
	if err != nil {
		c.mu.Lock()
		c.authorErr = err.Error()
		c.profile = nil
		c.resolveGen++
		c.mu.Unlock()
		return err
	}
	if !library.PubkeyOnCurve(pk) {
		library.LogCLI(fmt.Sprintf("%s is not a point on the curve, querying anyway", pk), 2)
	}
	c.mu.Lock()
	if pk == c.author {
		c.authorErr = ""
		c.mu.Unlock()
		return nil
	}
	c.author = pk
	c.authorErr = ""
	c.profile = nil
	c.resolveGen++
	gen := c.resolveGen
	c.mu.Unlock()
	c.work.Add(1)
	go c.resolve(pk, gen)
	return nil
}

func (c *Checker) resolve(pk library.Account, gen int) {
	defer c.work.Done()
	bootstrap := relays.Uniq(c.opts.Bootstrap)
	if c.opts.ResetRelaysOnAuthorChange && len(bootstrap) > 0 {
		c.mu.Lock()
		fresh := gen == c.resolveGen
		if fresh {
			c.addresses = slices.Clone(bootstrap)
			c.discovered = nil
			c.states = Reconcile(c.states, c.addresses)
		}
		c.mu.Unlock()
		// a superseded generation must not restart the newer one's round
		if fresh {
			c.Query()
		}
	}
	c.resolveProfile(pk, gen, bootstrap)
	c.resolveOutbox(pk, gen, bootstrap)
}

func (c *Checker) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.resolveGen
}

// resolveProfile walks the bootstrap relays one at a time and stops at the
// first kind 0 document that parses. A document that arrives but does not
// parse still yields a minimal profile, so the caller at least sees the
// key, and the walk continues in case another relay has a readable copy.
func (c *Checker) resolveProfile(pk library.Account, gen int, bootstrap []string) {
	f := nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: []string{pk},
		Limit:   1,
	}
	for _, addr := range bootstrap {
		if c.stale(gen) {
			return
		}
		ev, err := c.fetchOne(addr, f)
		if err != nil {
			library.LogCLI(fmt.Sprintf("profile lookup on %s: %s", addr, err), 3)
			continue
		}
		if ev == nil {
			continue
		}
		p := library.Profile{Account: pk}
		if err := json.Unmarshal([]byte(ev.Content), &p); err != nil {
			c.setProfile(gen, library.Profile{Account: pk})
			continue
		}
		p.Account = pk
		c.setProfile(gen, p)
		return
	}
}

func (c *Checker) setProfile(gen int, p library.Profile) {
	c.mu.Lock()
	if gen == c.resolveGen {
		c.profile = &p
	}
	c.mu.Unlock()
}

// resolveOutbox finds the author's declared write relays (kind 10002) and
// appends them to the registry after the bootstrap set, replacing whatever
// an earlier merge added. Walks the bootstrap relays one at a time and
// stops at the first relay list found.
func (c *Checker) resolveOutbox(pk library.Account, gen int, bootstrap []string) {
	f := nostr.Filter{
		Kinds:   []int{nostr.KindRelayListMetadata},
		Authors: []string{pk},
		Limit:   1,
	}
	for _, addr := range bootstrap {
		if c.stale(gen) {
			return
		}
		ev, err := c.fetchOne(addr, f)
		if err != nil {
			library.LogCLI(fmt.Sprintf("relay list lookup on %s: %s", addr, err), 3)
			continue
		}
		if ev == nil {
			continue
		}
		c.mergeDiscovered(gen, relays.Uniq(library.WriteRelaysFromTags(*ev)))
		return
	}
}

func (c *Checker) mergeDiscovered(gen int, writes []string) {
	c.mu.Lock()
	if gen != c.resolveGen {
		c.mu.Unlock()
		return
	}
	// current list minus the previous merge, then the new one; relays that
	// survive the swap keep their results
	base := make([]string, 0, len(c.addresses))
	for _, a := range c.addresses {
		if !slices.Contains(c.discovered, a) {
			base = append(base, a)
		}
	}
	c.discovered = nil
	for _, w := range writes {
		if !slices.Contains(base, w) {
			c.discovered = append(c.discovered, w)
		}
	}
	c.addresses = append(base, c.discovered...)
	c.states = Reconcile(c.states, c.addresses)
	c.mu.Unlock()
	c.Query()
}

// fetchOne runs one one-shot subscription against one relay, bounded by the
// resolver timeout and the checker's lifetime.
func (c *Checker) fetchOne(addr string, f nostr.Filter) (*nostr.Event, error) {
	ctx := c.ctx
	if c.opts.ResolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ResolverTimeout)
		defer cancel()
		// per-fetch watchdog, armed only when the fetch carries a deadline
		sane := library.ValidateSaneExecutionTime()
		defer sane()
	}
	sess, err := c.opts.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.FetchFirst(ctx, f)
}
