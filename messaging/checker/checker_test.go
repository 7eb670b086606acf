package checker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checknostr/messaging/relays"
)

var (
	testID  = strings.Repeat("e3a1", 16)
	testID2 = strings.Repeat("b2c3", 16)
	testPK  = strings.Repeat("abcd", 16)
)

// scriptSession lets each test script a relay's behavior per method.
type scriptSession struct {
	check   func(ctx context.Context, id string) (*nostr.Event, error)
	fetch   func(ctx context.Context, f nostr.Filter) (*nostr.Event, error)
	publish func(ctx context.Context, ev nostr.Event) error
}

func (s *scriptSession) CheckEvent(ctx context.Context, id string) (*nostr.Event, error) {
	if s.check != nil {
		return s.check(ctx, id)
	}
	return nil, nil
}

func (s *scriptSession) FetchFirst(ctx context.Context, f nostr.Filter) (*nostr.Event, error) {
	if s.fetch != nil {
		return s.fetch(ctx, f)
	}
	return nil, nil
}

func (s *scriptSession) Publish(ctx context.Context, ev nostr.Event) error {
	if s.publish != nil {
		return s.publish(ctx, ev)
	}
	return nil
}

func (s *scriptSession) Close() error { return nil }

// dialCounter wraps a dialer and counts dials per address.
type dialCounter struct {
	mu    deadlock.Mutex
	count map[string]int
	dial  relays.Dialer
}

func newDialCounter(dial relays.Dialer) *dialCounter {
	return &dialCounter{count: make(map[string]int), dial: dial}
}

func (d *dialCounter) Dial(ctx context.Context, url string) (relays.Session, error) {
	d.mu.Lock()
	d.count[url]++
	d.mu.Unlock()
	return d.dial(ctx, url)
}

func (d *dialCounter) Count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count[url]
}

func testEvent(id, pk, content string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Content:   content,
	}
}

func servingDialer(events map[string]*nostr.Event) relays.Dialer {
	return func(ctx context.Context, url string) (relays.Session, error) {
		return &scriptSession{
			check: func(ctx context.Context, id string) (*nostr.Event, error) {
				if ev, ok := events[url]; ok && ev.ID == id {
					return ev, nil
				}
				return nil, nil
			},
		}, nil
	}
}

func stateFor(t *testing.T, c *Checker, url string) RelayState {
	t.Helper()
	for _, st := range c.Relays() {
		if st.URL == url {
			return st
		}
	}
	t.Fatalf("no state for %s", url)
	return RelayState{}
}

func TestHappyPath(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	c := New(Options{Dial: servingDialer(map[string]*nostr.Event{relay: ev})})
	c.AddRelay("relay.damus.io")

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()

	st := stateFor(t, c, relay)
	require.NotNil(t, st.HasEvent)
	assert.True(t, *st.HasEvent)
	require.NotNil(t, st.Event)
	assert.Equal(t, testID, st.Event.ID)
	assert.Equal(t, StatusClosed, st.Status)

	require.NotNil(t, c.Canonical())
	assert.Equal(t, testID, c.Canonical().ID)

	author, authorErr := c.Author()
	assert.Equal(t, testPK, author)
	assert.Empty(t, authorErr)
}

func TestAbsence(t *testing.T) {
	relay := "wss://relay.damus.io"
	c := New(Options{Dial: servingDialer(nil)})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()

	st := stateFor(t, c, relay)
	require.NotNil(t, st.HasEvent)
	assert.False(t, *st.HasEvent)
	assert.Nil(t, st.Event)
	assert.Nil(t, c.Canonical())
}

func TestFirstWriterWins(t *testing.T) {
	relayA := "wss://a.example"
	relayB := "wss://b.example"
	evA := testEvent(testID, testPK, "first")
	evB := testEvent(testID, testPK, "second copy, different payload")
	c := New(Options{Dial: servingDialer(map[string]*nostr.Event{relayA: evA, relayB: evB})})
	c.AddRelay(relayA)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()
	require.NotNil(t, c.Canonical())
	assert.Equal(t, "first", c.Canonical().Content)

	// a later arrival from a second relay never overwrites the canonical copy
	c.AddRelay(relayB)
	c.Query()
	c.Wait()

	stB := stateFor(t, c, relayB)
	require.NotNil(t, stB.HasEvent)
	assert.True(t, *stB.HasEvent)
	assert.Equal(t, "first", c.Canonical().Content)

	// and the earlier relay's result survived the registry change untouched
	stA := stateFor(t, c, relayA)
	require.NotNil(t, stA.HasEvent)
	assert.True(t, *stA.HasEvent)
}

func TestIdempotentFinalization(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	dc := newDialCounter(servingDialer(map[string]*nostr.Event{relay: ev}))
	c := New(Options{Dial: dc.Dial})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()
	assert.Equal(t, 1, dc.Count(relay))

	// repeated rounds for the same target skip finalized relays
	c.Query()
	c.Wait()
	c.Query()
	c.Wait()
	assert.Equal(t, 1, dc.Count(relay))

	// an explicit re-query is the escape hatch
	c.Requery()
	c.Wait()
	assert.Equal(t, 2, dc.Count(relay))
}

func TestIdentifierChangeResetsEverything(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	c := New(Options{Dial: servingDialer(map[string]*nostr.Event{relay: ev})})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()
	require.NotNil(t, stateFor(t, c, relay).HasEvent)

	require.NoError(t, c.SetTarget(testID2))
	st := stateFor(t, c, relay)
	assert.Nil(t, st.HasEvent)
	assert.Nil(t, st.Event)
	assert.Equal(t, StatusIdle, st.Status)
	assert.Nil(t, c.Canonical())
}

func TestInvalidTargetKeepsResults(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	c := New(Options{Dial: servingDialer(map[string]*nostr.Event{relay: ev})})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()

	// a half-typed identifier must not destroy what is on display
	assert.Error(t, c.SetTarget("e3a1 oops"))
	st := stateFor(t, c, relay)
	require.NotNil(t, st.HasEvent)
	assert.True(t, *st.HasEvent)

	id, idErr := c.Target()
	assert.Empty(t, id)
	assert.NotEmpty(t, idErr)

	// and no round can start against the broken input
	c.Query()
	c.Wait()
}

func TestDialErrorDoesNotClobberPriorResult(t *testing.T) {
	relay := "wss://relay.damus.io"
	c := New(Options{Dial: func(ctx context.Context, url string) (relays.Session, error) {
		return nil, errors.New("dial tcp: connection refused")
	}})
	c.AddRelay(relay)
	require.NoError(t, c.SetTarget(testID))

	// seed a prior success, then run a session that fails to connect
	has := true
	c.mu.Lock()
	st := c.states[relay]
	st.HasEvent = &has
	st.Event = testEvent(testID, testPK, "hello")
	c.mu.Unlock()

	rt := &round{}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	defer rt.cancel()
	rt.wg.Add(1)
	c.work.Add(1)
	c.runSession(rt, relay, testID)

	got := stateFor(t, c, relay)
	assert.Equal(t, StatusError, got.Status)
	assert.NotEmpty(t, got.Err)
	require.NotNil(t, got.HasEvent)
	assert.True(t, *got.HasEvent)
	require.NotNil(t, got.Event)
}

func TestSessionErrorIsFinalForTheRound(t *testing.T) {
	relay := "wss://relay.damus.io"
	dc := newDialCounter(func(ctx context.Context, url string) (relays.Session, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	c := New(Options{Dial: dc.Dial})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()
	assert.Equal(t, 1, dc.Count(relay))
	assert.Equal(t, StatusError, stateFor(t, c, relay).Status)

	// no automatic retry: errored relays are skipped until a re-query
	c.Query()
	c.Wait()
	assert.Equal(t, 1, dc.Count(relay))
}

func TestRemoveAndReAddClearsResult(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	c := New(Options{Dial: servingDialer(map[string]*nostr.Event{relay: ev})})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	c.Query()
	c.Wait()
	require.NotNil(t, stateFor(t, c, relay).HasEvent)

	c.RemoveRelay(relay)
	assert.Empty(t, c.Relays())

	c.AddRelay(relay)
	st := stateFor(t, c, relay)
	assert.Nil(t, st.HasEvent)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestDuplicateAddCollapses(t *testing.T) {
	c := New(Options{Dial: servingDialer(nil)})
	c.AddRelay("relay.damus.io")
	c.AddRelay("wss://relay.damus.io/")
	c.AddRelay("WSS://RELAY.DAMUS.IO")
	assert.Equal(t, []string{"wss://relay.damus.io"}, c.Addresses())
}

func TestConcurrentQueriesNeverOverlapSessions(t *testing.T) {
	relay := "wss://relay.damus.io"
	var mu deadlock.Mutex
	live, maxLive := 0, 0
	dial := func(ctx context.Context, url string) (relays.Session, error) {
		return &scriptSession{
			check: func(ctx context.Context, id string) (*nostr.Event, error) {
				mu.Lock()
				live++
				if live > maxLive {
					maxLive = live
				}
				mu.Unlock()
				<-ctx.Done()
				mu.Lock()
				live--
				mu.Unlock()
				return nil, ctx.Err()
			},
		}, nil
	}
	c := New(Options{Dial: dial})
	c.AddRelay(relay)
	require.NoError(t, c.SetTarget(testID))

	// every pair races teardown against install; a round handed over badly
	// leaves two sessions blocked on one relay at once
	for i := 0; i < 25; i++ {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				c.Query()
			}()
		}
		close(start)
		wg.Wait()
	}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxLive, 1)
	assert.Zero(t, live)
}

func TestAutoQueryFiresAfterInputsSettle(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	dc := newDialCounter(servingDialer(map[string]*nostr.Event{relay: ev}))
	c := New(Options{Dial: dc.Dial, AutoQuery: true, Debounce: 10 * time.Millisecond})
	c.AddRelay(relay)

	require.NoError(t, c.SetTarget(testID))
	require.Eventually(t, func() bool { return dc.Count(relay) == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Wait()

	st := stateFor(t, c, relay)
	require.NotNil(t, st.HasEvent)
	assert.True(t, *st.HasEvent)
}

func TestAutoQueryNeedsAValidTarget(t *testing.T) {
	relay := "wss://relay.damus.io"
	dc := newDialCounter(servingDialer(nil))
	c := New(Options{Dial: dc.Dial, AutoQuery: true, Debounce: 10 * time.Millisecond})
	c.AddRelay(relay)

	assert.Error(t, c.SetTarget("not an id"))
	time.Sleep(100 * time.Millisecond)
	c.Wait()
	assert.Zero(t, dc.Count(relay))
}

func TestToggleAutoQuery(t *testing.T) {
	relay := "wss://relay.damus.io"
	ev := testEvent(testID, testPK, "hello")
	dc := newDialCounter(servingDialer(map[string]*nostr.Event{relay: ev}))
	c := New(Options{Dial: dc.Dial, AutoQuery: true, Debounce: 10 * time.Millisecond})
	c.AddRelay(relay)

	assert.False(t, c.ToggleAutoQuery())
	require.NoError(t, c.SetTarget(testID))
	time.Sleep(100 * time.Millisecond)
	c.Wait()
	assert.Zero(t, dc.Count(relay))

	assert.True(t, c.ToggleAutoQuery())
	require.NoError(t, c.SetTarget(testID))
	require.Eventually(t, func() bool { return dc.Count(relay) == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Wait()
}
