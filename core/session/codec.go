package session

import (
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec serializes sessions for storage.
type Codec interface {
	Encode(s *Session) ([]byte, error)
	Decode(raw []byte) (*Session, error)
}

// JSONCodec stores sessions as JSON documents.
type JSONCodec struct{}

func (JSONCodec) Encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func (JSONCodec) Decode(raw []byte) (*Session, error) {
	s := New()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	return s, nil
}

// CBORCodec stores sessions as compact CBOR blobs.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a codec whose nested maps decode as map[string]any.
func NewCBORCodec() (*CBORCodec, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Encode(s *Session) ([]byte, error) {
	return c.enc.Marshal(s)
}

func (c *CBORCodec) Decode(raw []byte) (*Session, error) {
	s := New()
	if len(raw) == 0 {
		return s, nil
	}
	if err := c.dec.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	return s, nil
}
