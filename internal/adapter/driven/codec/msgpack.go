package codec

import (
	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack carries the same envelope as JSON in a compact binary form. Only
// native clients understand it.
type MsgPack struct{}

func (MsgPack) Encode(sig domain.Signal) ([]byte, error) {
	m, err := toWire(sig)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(m)
}

func (MsgPack) Decode(payload []byte) (domain.Signal, error) {
	var m message
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return nil, domain.WrapError("decode", domain.ErrMalformedSignal, err.Error())
	}
	return fromWire(&m)
}
