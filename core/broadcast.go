package core

import (
	"sync"
)

// RoomBroadcaster fans an event out to every connection that is a member of
// a room at the instant of the broadcast. Delivery is fire and forget: a
// connection that drops between the membership snapshot and the send simply
// misses the event.
type RoomBroadcaster struct {
	registry Registry
	sender   EventSender
	// mu serializes fan-outs so that events broadcast to the same room are
	// delivered to all members in submission order.
	mu sync.Mutex
}

func NewRoomBroadcaster(registry Registry, sender EventSender) *RoomBroadcaster {
	return &RoomBroadcaster{
		registry: registry,
		sender:   sender,
	}
}

// Broadcast marshals payload and delivers it to the current members of room.
func (b *RoomBroadcaster) Broadcast(room, eventType string, payload interface{}) error {
	e, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	members := b.registry.MembersOf(room)
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}
	b.sender.SendToConns(e, ids...)
	return nil
}
