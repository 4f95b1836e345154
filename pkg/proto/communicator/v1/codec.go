package communicator

import (
	"fmt"
)

// Codec implements grpc's encoding.Codec for the communicator messages.
// It is registered under the "proto" name so that it answers the content
// subtype Unity sends.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("communicator: cannot marshal %T", v)
	}
	return m.appendTo(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("communicator: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

// Marshal encodes a UnityMessage to protobuf wire format.
func Marshal(m *UnityMessage) []byte {
	return m.appendTo(nil)
}

// Unmarshal decodes protobuf wire format into a fresh UnityMessage.
func Unmarshal(b []byte) (*UnityMessage, error) {
	m := &UnityMessage{}
	if err := m.unmarshal(b); err != nil {
		return nil, err
	}
	return m, nil
}
