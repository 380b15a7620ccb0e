package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog"
)

func newTestRegistry(maxPeers int) (*registry, *fakeFactory, *counters) {
	stats := &counters{}
	f := newFakeFactory()
	g := newRegistry(f, nil, maxPeers, stats, zerolog.Nop())
	g.hooks = func(*peerSession) port.TransportHandlers { return noopHandlers() }
	return g, f, stats
}

func TestRegistryGetOrCreateIsSingleFlight(t *testing.T) {
	t.Parallel()

	g, f, _ := newTestRegistry(0)
	local := newStream("cam", domain.TrackKindAudio)

	first, created, err := g.getOrCreate("bob", domain.RoleInitiator, local)
	if err != nil || !created {
		t.Fatalf("first getOrCreate = %v, %v", created, err)
	}
	second, created, err := g.getOrCreate("bob", domain.RoleResponder, local)
	if err != nil || created {
		t.Fatalf("second getOrCreate = %v, %v", created, err)
	}
	if first != second {
		t.Fatalf("getOrCreate returned a different session")
	}
	if second.role != domain.RoleInitiator {
		t.Fatalf("role changed to %s", second.role)
	}
	if f.count("bob") != 1 {
		t.Fatalf("factory built %d transports, want 1", f.count("bob"))
	}
	if !first.localTracksAttached {
		t.Fatalf("local tracks not attached")
	}
	if got := f.latest("bob").localStream(); got != local {
		t.Fatalf("transport carries %v, want the shared stream", got)
	}
}

func TestRegistryEnforcesPeerLimit(t *testing.T) {
	t.Parallel()

	g, _, stats := newTestRegistry(1)
	if _, _, err := g.getOrCreate("bob", domain.RoleInitiator, nil); err != nil {
		t.Fatalf("getOrCreate bob: %v", err)
	}
	_, _, err := g.getOrCreate("carol", domain.RoleInitiator, nil)
	if !errors.Is(err, domain.ErrPeerLimit) {
		t.Fatalf("getOrCreate carol error = %v, want ErrPeerLimit", err)
	}
	if g.len() != 1 || stats.peerLimit.Load() != 1 {
		t.Fatalf("len=%d peerLimit=%d", g.len(), stats.peerLimit.Load())
	}

	// An existing peer is still reachable at the cap.
	if _, created, err := g.getOrCreate("bob", domain.RoleInitiator, nil); err != nil || created {
		t.Fatalf("getOrCreate bob at cap = %v, %v", created, err)
	}
}

func TestRegistryTransportFailureRegistersNothing(t *testing.T) {
	t.Parallel()

	g, f, stats := newTestRegistry(0)
	f.err = errors.New("no ports")

	if _, _, err := g.getOrCreate("bob", domain.RoleInitiator, nil); err == nil {
		t.Fatalf("expected an error")
	}
	if g.get("bob") != nil {
		t.Fatalf("session registered despite transport failure")
	}
	if stats.transportErrors.Load() != 1 {
		t.Fatalf("transportErrors = %d, want 1", stats.transportErrors.Load())
	}
}

func TestRegistryRemoveClosesSession(t *testing.T) {
	t.Parallel()

	g, f, _ := newTestRegistry(0)
	s, _, _ := g.getOrCreate("bob", domain.RoleInitiator, nil)

	if !g.remove("bob") {
		t.Fatalf("remove reported no session")
	}
	if g.remove("bob") {
		t.Fatalf("second remove reported a session")
	}
	if g.current(s) {
		t.Fatalf("removed session still current")
	}
	if _, _, _, closed := f.latest("bob").snapshot(); !closed {
		t.Fatalf("transport not closed")
	}

	again, created, _ := g.getOrCreate("bob", domain.RoleResponder, nil)
	if !created || again == s || !g.current(again) || g.current(s) {
		t.Fatalf("recreated session not tracked separately")
	}
}

func TestRegistrySnapshotIsOrdered(t *testing.T) {
	t.Parallel()

	g, _, _ := newTestRegistry(0)
	for _, id := range []domain.ParticipantID{"carol", "alice", "bob"} {
		if _, _, err := g.getOrCreate(id, domain.RoleInitiator, nil); err != nil {
			t.Fatalf("getOrCreate %s: %v", id, err)
		}
	}

	snap := g.snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d sessions", len(snap))
	}
	for i, want := range []domain.ParticipantID{"alice", "bob", "carol"} {
		if snap[i].RemoteID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, snap[i].RemoteID, want)
		}
	}

	if n := g.removeAll(); n != 3 || g.len() != 0 {
		t.Fatalf("removeAll = %d, len = %d", n, g.len())
	}
}

func TestPolite(t *testing.T) {
	t.Parallel()

	if !polite("alice", "bob") || polite("bob", "alice") {
		t.Fatalf("smaller id must be the polite one")
	}
	if roleOnJoin() != domain.RoleInitiator || roleOnOffer() != domain.RoleResponder {
		t.Fatalf("unexpected presence roles")
	}

	d := newDepartures()
	d.mark("bob")
	if !d.has("bob") {
		t.Fatalf("departure not recorded")
	}
	d.clear("bob")
	if d.has("bob") {
		t.Fatalf("departure not cleared")
	}
}

func TestDeparturesForgetOldestBeyondLimit(t *testing.T) {
	t.Parallel()

	d := newDepartures()
	for i := 0; i <= maxDepartures; i++ {
		d.mark(domain.ParticipantID(fmt.Sprintf("peer-%03d", i)))
	}
	if got := d.len(); got != maxDepartures {
		t.Fatalf("remembered %d departures, want %d", got, maxDepartures)
	}
	if d.has("peer-000") {
		t.Fatalf("oldest departure still remembered")
	}
	if !d.has(domain.ParticipantID(fmt.Sprintf("peer-%03d", maxDepartures))) {
		t.Fatalf("newest departure forgotten")
	}

	// Re-marking refreshes an entry so it outlives older ones.
	d.mark("peer-001")
	d.mark("late")
	if !d.has("peer-001") || d.has("peer-002") {
		t.Fatalf("refreshed entry evicted before older ones")
	}
	if len(d.order) > 2*maxDepartures {
		t.Fatalf("order grew to %d entries", len(d.order))
	}
}
