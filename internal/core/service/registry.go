package service

import (
	"sort"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog"
)

// registry maps remote participants to their session. It is owned by a
// room's actor goroutine, which is what keeps creation single-flight.
type registry struct {
	sessions   map[domain.ParticipantID]*peerSession
	factory    port.TransportFactory
	iceServers []domain.ICEServer
	maxPeers   int
	hooks      func(s *peerSession) port.TransportHandlers
	stats      *counters
	log        zerolog.Logger
}

func newRegistry(factory port.TransportFactory, iceServers []domain.ICEServer, maxPeers int, stats *counters, l zerolog.Logger) *registry {
	return &registry{
		sessions:   make(map[domain.ParticipantID]*peerSession),
		factory:    factory,
		iceServers: iceServers,
		maxPeers:   maxPeers,
		stats:      stats,
		log:        l,
	}
}

func (g *registry) get(id domain.ParticipantID) *peerSession {
	return g.sessions[id]
}

// current reports whether s is still the registered session for its peer.
// Callbacks from replaced or removed sessions fail this check.
func (g *registry) current(s *peerSession) bool {
	return s != nil && g.sessions[s.remoteID] == s
}

func (g *registry) len() int {
	return len(g.sessions)
}

// getOrCreate returns the session for id, creating it with role when absent.
// The role of an existing session is left untouched.
func (g *registry) getOrCreate(id domain.ParticipantID, role domain.Role, local *domain.LocalStream) (*peerSession, bool, error) {
	if s, ok := g.sessions[id]; ok {
		return s, false, nil
	}
	if g.maxPeers > 0 && len(g.sessions) >= g.maxPeers {
		g.stats.peerLimit.Add(1)
		return nil, false, domain.NewPeerError("create session", id, domain.ErrPeerLimit)
	}

	s := newPeerSession(id, role, g.stats, g.log)
	var handlers port.TransportHandlers
	if g.hooks != nil {
		handlers = g.hooks(s)
	}
	t, err := g.factory.NewTransport(id, g.iceServers, handlers)
	if err != nil {
		g.stats.transportErrors.Add(1)
		return nil, false, domain.NewPeerError("create transport", id, err)
	}
	s.transport = t

	if err := s.attach(local); err != nil {
		g.log.Warn().Err(err).Str("peer", id.String()).Msg("Session created without local tracks")
	}

	g.sessions[id] = s
	g.log.Info().Str("peer", id.String()).Str("role", role.String()).Int("count", len(g.sessions)).Msg("Peer session created")
	return s, true, nil
}

func (g *registry) remove(id domain.ParticipantID) bool {
	s, ok := g.sessions[id]
	if !ok {
		return false
	}
	delete(g.sessions, id)
	s.close()
	g.log.Info().Str("peer", id.String()).Int("count", len(g.sessions)).Msg("Peer session removed")
	return true
}

func (g *registry) removeAll() int {
	n := len(g.sessions)
	for id := range g.sessions {
		g.remove(id)
	}
	return n
}

// ordered returns the sessions sorted by remote id.
func (g *registry) ordered() []*peerSession {
	out := make([]*peerSession, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].remoteID < out[j].remoteID
	})
	return out
}

func (g *registry) snapshot() []SessionInfo {
	sessions := g.ordered()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}
