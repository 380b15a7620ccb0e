package port

import "github.com/Wyydra/yamesh/internal/core/domain"

// SignalCodec converts signals to and from relay payloads.
type SignalCodec interface {
	Encode(sig domain.Signal) ([]byte, error)
	Decode(payload []byte) (domain.Signal, error)
}
