package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes envelopes as canonical CBOR, so equal messages produce
// equal bytes.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec builds a codec with canonical encoding and strict decoding.
func NewCodec() (*Codec, error) {
	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("building CBOR encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("building CBOR decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode serializes e.
func (c *Codec) Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := c.enc.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %v: %w", e.Kind, err)
	}
	return data, nil
}

// Decode parses data produced by Encode.
func (c *Codec) Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := c.dec.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// RoundTrip encodes and decodes e, reporting the encoded size. The
// runtimes use it to push every message through the wire format.
func (c *Codec) RoundTrip(e Envelope) (Envelope, int, error) {
	data, err := c.Encode(e)
	if err != nil {
		return Envelope{}, 0, err
	}
	out, err := c.Decode(data)
	if err != nil {
		return Envelope{}, 0, err
	}
	return out, len(data), nil
}
