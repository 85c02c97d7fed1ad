// Package trace defines the runtime entities shared between the CFG
// simulator, the CFSM simulator, and the distributed coordinator: messages,
// buffers, and execution traces.
package trace

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Role identifies a protocol participant.
type Role string

// Label identifies a message kind exchanged between roles.
type Label string

// seq is a process-wide monotonic counter backing Message.Seq, so traces
// recorded in the same process can be sorted by emission order even when
// two messages share a timestamp.
var seq uint64

// Message is a single point-to-point communication.
type Message struct {
	ID          string `json:"id"`
	From        Role   `json:"from"`
	To          Role   `json:"to"`
	Label       Label  `json:"label"`
	PayloadType string `json:"payload_type,omitempty"`
	Seq         uint64 `json:"seq"`
}

// NewMessage stamps a fresh id and sequence number for a message between
// from and to carrying label. PayloadType may be empty.
func NewMessage(from, to Role, label Label, payloadType string) Message {
	return Message{
		ID:          uuid.NewString(),
		From:        from,
		To:          to,
		Label:       label,
		PayloadType: payloadType,
		Seq:         atomic.AddUint64(&seq, 1),
	}
}

// Channel is the (sender, receiver) pair that identifies a FIFO channel
// ("Channel identity").
type Channel struct {
	From Role
	To   Role
}

// ChannelOf returns the channel identity for a message.
func ChannelOf(m Message) Channel {
	return Channel{From: m.From, To: m.To}
}

// Buffer is an ordered FIFO queue of messages from a single sender, as seen
// by one receiving role ("MessageBuffer").
type Buffer struct {
	items []Message
}

// Enqueue appends m to the tail of the buffer.
func (b *Buffer) Enqueue(m Message) {
	b.items = append(b.items, m)
}

// Peek returns the head of the buffer without removing it.
func (b *Buffer) Peek() (Message, bool) {
	if len(b.items) == 0 {
		return Message{}, false
	}
	return b.items[0], true
}

// Dequeue removes and returns the head of the buffer.
func (b *Buffer) Dequeue() (Message, bool) {
	m, ok := b.Peek()
	if !ok {
		return Message{}, false
	}
	b.items = b.items[1:]
	return m, true
}

// Len reports the number of queued messages.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Snapshot returns a copy of the queued messages, oldest first.
func (b *Buffer) Snapshot() []Message {
	out := make([]Message, len(b.items))
	copy(out, b.items)
	return out
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	clone := &Buffer{items: make([]Message, len(b.items))}
	copy(clone.items, b.items)
	return clone
}
