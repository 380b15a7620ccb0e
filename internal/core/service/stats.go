package service

import "sync/atomic"

// Stats counts signals the router dropped or could not apply. Protocol
// drops never tear anything down; they are only counted and logged.
type Stats struct {
	SelfEcho        int64
	NotAddressed    int64
	Malformed       int64
	DuplicateJoin   int64
	UnknownSession  int64
	UnexpectedReply int64
	Glare           int64
	DepartedPeer    int64
	PeerLimit       int64
	TransportErrors int64
	EventsDropped   int64
}

type counters struct {
	selfEcho        atomic.Int64
	notAddressed    atomic.Int64
	malformed       atomic.Int64
	duplicateJoin   atomic.Int64
	unknownSession  atomic.Int64
	unexpectedReply atomic.Int64
	glare           atomic.Int64
	departedPeer    atomic.Int64
	peerLimit       atomic.Int64
	transportErrors atomic.Int64
	eventsDropped   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SelfEcho:        c.selfEcho.Load(),
		NotAddressed:    c.notAddressed.Load(),
		Malformed:       c.malformed.Load(),
		DuplicateJoin:   c.duplicateJoin.Load(),
		UnknownSession:  c.unknownSession.Load(),
		UnexpectedReply: c.unexpectedReply.Load(),
		Glare:           c.glare.Load(),
		DepartedPeer:    c.departedPeer.Load(),
		PeerLimit:       c.peerLimit.Load(),
		TransportErrors: c.transportErrors.Load(),
		EventsDropped:   c.eventsDropped.Load(),
	}
}
