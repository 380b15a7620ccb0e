package domain

import (
	"github.com/google/uuid"
)

// ParticipantID identifies one membership of a room. It is opaque to the
// signaling core and never reused for a different participant.
type ParticipantID string

// RoomID names the room whose relay topic carries signaling.
type RoomID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.New().String())
}

func NewRoomID() RoomID {
	return RoomID(uuid.New().String())
}

func (id ParticipantID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}

// Topic returns the relay topic used for signaling in this room.
func (id RoomID) Topic() string {
	return "webrtc:" + string(id)
}
