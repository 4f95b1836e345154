package sidechannel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrMalformed = errors.New("malformed side channel data; check that the ML-Agents package in Unity is compatible with this actor")

// Manager multiplexes registered channels onto the single side channel
// byte field of each exchange.
type Manager struct {
	channels map[uuid.UUID]Channel
	order    []uuid.UUID
	logger   zerolog.Logger
}

func NewManager(logger zerolog.Logger, channels ...Channel) (*Manager, error) {
	m := &Manager{
		channels: make(map[uuid.UUID]Channel, len(channels)),
		logger:   logger,
	}
	for _, ch := range channels {
		id := ch.ChannelID()
		if _, dup := m.channels[id]; dup {
			return nil, fmt.Errorf("side channel %s registered twice", id)
		}
		m.channels[id] = ch
		m.order = append(m.order, id)
	}
	return m, nil
}

// Process dispatches every message contained in data to its channel.
func (m *Manager) Process(data []byte) error {
	for offset := 0; offset < len(data); {
		if len(data)-offset < 20 {
			return ErrMalformed
		}
		id := uuidFromBytesLE(data[offset : offset+16])
		offset += 16
		size := int(int32(binary.LittleEndian.Uint32(data[offset:])))
		offset += 4
		if size < 0 || offset+size > len(data) {
			return fmt.Errorf("message for side channel %s was unexpectedly short: %w", id, ErrMalformed)
		}
		payload := data[offset : offset+size]
		offset += size

		ch, ok := m.channels[id]
		if !ok {
			m.logger.Warn().Str("channel_id", id.String()).Msg("unknown side channel data received")
			continue
		}
		msg := NewIncomingMessage(payload)
		if err := ch.OnMessageReceived(msg); err != nil {
			return fmt.Errorf("side channel %s: %w", id, err)
		}
		if err := msg.Err(); err != nil {
			return fmt.Errorf("side channel %s: %w", id, err)
		}
	}
	return nil
}

// Generate drains the queued messages of every channel in registration order.
func (m *Manager) Generate() []byte {
	var out []byte
	for _, id := range m.order {
		for _, payload := range m.channels[id].TakeQueued() {
			out = append(out, uuidBytesLE(id)...)
			out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
			out = append(out, payload...)
		}
	}
	return out
}
