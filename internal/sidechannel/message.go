package sidechannel

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrShortMessage = errors.New("side channel message ended mid-value")

// OutgoingMessage builds a side channel payload. All values are little-endian.
type OutgoingMessage struct {
	buf []byte
}

func NewOutgoingMessage() *OutgoingMessage {
	return &OutgoingMessage{}
}

func (m *OutgoingMessage) WriteBool(v bool) {
	if v {
		m.buf = append(m.buf, 1)
		return
	}
	m.buf = append(m.buf, 0)
}

func (m *OutgoingMessage) WriteInt32(v int32) {
	m.buf = binary.LittleEndian.AppendUint32(m.buf, uint32(v))
}

func (m *OutgoingMessage) WriteFloat32(v float32) {
	m.buf = binary.LittleEndian.AppendUint32(m.buf, math.Float32bits(v))
}

// WriteFloat32List writes the element count followed by the values.
func (m *OutgoingMessage) WriteFloat32List(vs []float32) {
	m.WriteInt32(int32(len(vs)))
	for _, v := range vs {
		m.WriteFloat32(v)
	}
}

// WriteString writes the byte length followed by the UTF-8 bytes.
func (m *OutgoingMessage) WriteString(s string) {
	m.WriteInt32(int32(len(s)))
	m.buf = append(m.buf, s...)
}

func (m *OutgoingMessage) SetRawBytes(b []byte) {
	m.buf = append(m.buf[:0], b...)
}

func (m *OutgoingMessage) Bytes() []byte {
	return m.buf
}

// IncomingMessage reads a side channel payload written by Unity. Readers
// return the supplied default once the buffer is exhausted; a value cut
// short in the middle also yields the default and is reported by Err.
type IncomingMessage struct {
	buf    []byte
	offset int
	err    error
}

func NewIncomingMessage(b []byte) *IncomingMessage {
	return &IncomingMessage{buf: b}
}

func (m *IncomingMessage) AtEnd() bool {
	return m.offset >= len(m.buf)
}

func (m *IncomingMessage) Err() error {
	return m.err
}

func (m *IncomingMessage) take(n int) ([]byte, bool) {
	if m.AtEnd() {
		return nil, false
	}
	if m.offset+n > len(m.buf) {
		m.err = ErrShortMessage
		m.offset = len(m.buf)
		return nil, false
	}
	b := m.buf[m.offset : m.offset+n]
	m.offset += n
	return b, true
}

func (m *IncomingMessage) ReadBool(def bool) bool {
	b, ok := m.take(1)
	if !ok {
		return def
	}
	return b[0] != 0
}

func (m *IncomingMessage) ReadInt32(def int32) int32 {
	b, ok := m.take(4)
	if !ok {
		return def
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (m *IncomingMessage) ReadFloat32(def float32) float32 {
	b, ok := m.take(4)
	if !ok {
		return def
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (m *IncomingMessage) ReadFloat32List(def []float32) []float32 {
	if m.AtEnd() {
		return def
	}
	n := m.ReadInt32(0)
	if n < 0 || int(n)*4 > len(m.buf)-m.offset {
		m.err = ErrShortMessage
		m.offset = len(m.buf)
		return def
	}
	out := make([]float32, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, m.ReadFloat32(0))
	}
	if m.err != nil {
		return def
	}
	return out
}

func (m *IncomingMessage) ReadString(def string) string {
	if m.AtEnd() {
		return def
	}
	n := m.ReadInt32(0)
	if n < 0 {
		m.err = ErrShortMessage
		return def
	}
	b, ok := m.take(int(n))
	if !ok {
		return def
	}
	return string(b)
}

func (m *IncomingMessage) RawBytes() []byte {
	return m.buf
}
