package codec

import (
	"encoding/json"

	"github.com/Wyydra/yamesh/internal/core/domain"
)

// JSON is the default wire format, readable by browser clients.
type JSON struct{}

func (JSON) Encode(sig domain.Signal) ([]byte, error) {
	m, err := toWire(sig)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (JSON) Decode(payload []byte) (domain.Signal, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, domain.WrapError("decode", domain.ErrMalformedSignal, err.Error())
	}
	return fromWire(&m)
}
