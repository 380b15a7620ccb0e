package domain

// SDPType mirrors the session description types used on the wire.
type SDPType string

const (
	SDPTypeOffer    SDPType = "offer"
	SDPTypeAnswer   SDPType = "answer"
	SDPTypePranswer SDPType = "pranswer"
	SDPTypeRollback SDPType = "rollback"
)

type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidate is the trickled candidate init exchanged between peers.
type ICECandidate struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

// Signal is the closed set of messages carried on the relay topic.
// Only the types in this file implement it.
type Signal interface {
	isSignal()
}

// Targeted is implemented by signals addressed to a single participant.
type Targeted interface {
	Signal
	Sender() ParticipantID
	Recipient() ParticipantID
}

// Joined announces a new member. Broadcast.
type Joined struct {
	ParticipantID ParticipantID
}

// Left announces a departing member. Broadcast, best-effort.
type Left struct {
	ParticipantID ParticipantID
}

type Offer struct {
	From        ParticipantID
	To          ParticipantID
	Description SessionDescription
}

type Answer struct {
	From        ParticipantID
	To          ParticipantID
	Description SessionDescription
}

type Candidate struct {
	From      ParticipantID
	To        ParticipantID
	Candidate ICECandidate
}

func (Joined) isSignal()    {}
func (Left) isSignal()      {}
func (Offer) isSignal()     {}
func (Answer) isSignal()    {}
func (Candidate) isSignal() {}

func (o Offer) Sender() ParticipantID        { return o.From }
func (o Offer) Recipient() ParticipantID     { return o.To }
func (a Answer) Sender() ParticipantID       { return a.From }
func (a Answer) Recipient() ParticipantID    { return a.To }
func (c Candidate) Sender() ParticipantID    { return c.From }
func (c Candidate) Recipient() ParticipantID { return c.To }

// Kind returns the wire tag of a signal, used for logging and metrics.
func Kind(s Signal) string {
	switch s.(type) {
	case Joined:
		return "user-joined"
	case Left:
		return "user-left"
	case Offer:
		return "offer"
	case Answer:
		return "answer"
	case Candidate:
		return "ice-candidate"
	default:
		return "unknown"
	}
}
