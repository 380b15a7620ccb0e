package service

import "github.com/Wyydra/yamesh/internal/core/domain"

// Presence rules.
//
// Whoever hears Joined{X} initiates toward X; X never initiates and answers
// every first-seen offer. Every existing member reacts to the same broadcast
// independently, so each pair gets exactly one offerer without extra
// messages.
//
// The rule cannot order two members that join at the same instant: both may
// hear the other's Joined and both offer. On such a collision the member with
// the smaller id is polite and yields.

// roleOnJoin is the role taken toward a member announced by Joined.
func roleOnJoin() domain.Role {
	return domain.RoleInitiator
}

// roleOnOffer is the role taken toward an unseen member that sent an offer.
func roleOnOffer() domain.Role {
	return domain.RoleResponder
}

// polite reports whether self yields when its offer to remote collides with
// an offer from remote.
func polite(self, remote domain.ParticipantID) bool {
	return self < remote
}

// maxDepartures bounds how many departed members are remembered; the
// oldest entry is forgotten first.
const maxDepartures = 256

// departures remembers members whose Left was processed so that stale offers
// cannot resurrect them. A fresh Joined clears the entry.
type departures struct {
	seq   uint64
	at    map[domain.ParticipantID]uint64
	order []departure
}

type departure struct {
	id  domain.ParticipantID
	seq uint64
}

func newDepartures() *departures {
	return &departures{at: make(map[domain.ParticipantID]uint64)}
}

func (d *departures) mark(id domain.ParticipantID) {
	d.seq++
	d.at[id] = d.seq
	d.order = append(d.order, departure{id: id, seq: d.seq})

	for len(d.at) > maxDepartures {
		oldest := d.order[0]
		d.order = d.order[1:]
		if d.at[oldest.id] == oldest.seq {
			delete(d.at, oldest.id)
		}
	}
	if len(d.order) > 2*maxDepartures {
		live := make([]departure, 0, len(d.at))
		for _, e := range d.order {
			if d.at[e.id] == e.seq {
				live = append(live, e)
			}
		}
		d.order = live
	}
}

func (d *departures) clear(id domain.ParticipantID) {
	delete(d.at, id)
}

func (d *departures) has(id domain.ParticipantID) bool {
	_, ok := d.at[id]
	return ok
}

func (d *departures) len() int {
	return len(d.at)
}
