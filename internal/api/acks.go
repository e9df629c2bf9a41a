// SPDX-License-Identifier: MIT

package api

import (
	"sync"
	"time"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/command"
)

const ackRetention = time.Minute

type ackSlot struct {
	acks    []command.Ack
	savedAt time.Time
}

// ackBuffer holds acks for locally originated commands until the HTTP
// caller collects them.
type ackBuffer struct {
	mu    sync.Mutex
	slots map[string]ackSlot
}

func newAckBuffer() *ackBuffer {
	return &ackBuffer{slots: make(map[string]ackSlot)}
}

func (b *ackBuffer) put(ack command.Ack) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	slot := b.slots[ack.CommandID]
	slot.acks = append(slot.acks, ack)
	slot.savedAt = now
	b.slots[ack.CommandID] = slot

	// Opportunistic eviction keeps the buffer bounded without a sweeper.
	for id, s := range b.slots {
		if now.Sub(s.savedAt) > ackRetention {
			delete(b.slots, id)
		}
	}
}

func (b *ackBuffer) take(commandID string) []command.Ack {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.slots[commandID]
	if !ok {
		return nil
	}
	delete(b.slots, commandID)
	return slot.acks
}
