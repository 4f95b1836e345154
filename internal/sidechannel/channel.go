// Package sidechannel implements the auxiliary message channels that ride
// along with every exchange between the actor and a Unity environment.
package sidechannel

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is one side channel. Both ends agree on its ID.
type Channel interface {
	ChannelID() uuid.UUID
	OnMessageReceived(msg *IncomingMessage) error
	// TakeQueued returns the payloads waiting to be sent and forgets them.
	TakeQueued() [][]byte
}

// Base implements queueing for channels that embed it.
type Base struct {
	id uuid.UUID

	mu     sync.Mutex
	queued [][]byte
}

func NewBase(id uuid.UUID) Base {
	return Base{id: id}
}

func (b *Base) ChannelID() uuid.UUID {
	return b.id
}

func (b *Base) QueueMessage(msg *OutgoingMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload := append([]byte(nil), msg.Bytes()...)
	b.queued = append(b.queued, payload)
}

func (b *Base) TakeQueued() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queued
	b.queued = nil
	return out
}

// uuidBytesLE returns the mixed-endian layout .NET's Guid uses: the first
// three fields little-endian, the rest as is.
func uuidBytesLE(id uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:], id[8:])
	return b
}

func uuidFromBytesLE(b []byte) uuid.UUID {
	var id uuid.UUID
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:], b[8:16])
	return id
}
