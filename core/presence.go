package core

// PresenceEntry binds a live connection to the username and room it joined
// with. Username and Room never change for the lifetime of an entry; a
// re-join replaces the whole entry.
type PresenceEntry struct {
	ConnID   string
	Username string
	Room     string
}

// RoomMember is the public slice of a presence entry used in membership
// snapshots and room-users broadcasts.
type RoomMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Registry tracks which room, if any, each live connection has joined.
// A connection has at most one entry at a time.
type Registry interface {
	// Join inserts the entry for the connection, replacing any previous one.
	Join(connID, username, room string)

	// Leave removes the entry for the connection. Removing an absent entry
	// is a no-op.
	Leave(connID string)

	// Get returns the entry for the connection, or ok=false if the
	// connection has not joined a room.
	Get(connID string) (PresenceEntry, bool)

	// MembersOf returns a snapshot of the members whose entry points at
	// room. The snapshot is taken atomically with respect to concurrent
	// Join/Leave calls; mutations after the call are not reflected.
	MembersOf(room string) []RoomMember
}

// PresenceRegistry is the in-memory Registry used by the relay. All state is
// lost on restart; clients repopulate it by joining again.
type PresenceRegistry struct {
	entries *SyncMap[string, PresenceEntry]
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: NewSyncMap[string, PresenceEntry](),
	}
}

func (r *PresenceRegistry) Join(connID, username, room string) {
	r.entries.Store(connID, PresenceEntry{
		ConnID:   connID,
		Username: username,
		Room:     room,
	})
}

func (r *PresenceRegistry) Leave(connID string) {
	r.entries.Delete(connID)
}

func (r *PresenceRegistry) Get(connID string) (PresenceEntry, bool) {
	return r.entries.Load(connID)
}

func (r *PresenceRegistry) MembersOf(room string) []RoomMember {
	members := make([]RoomMember, 0)
	r.entries.RRange(func(connID string, entry PresenceEntry) bool {
		if entry.Room == room {
			members = append(members, RoomMember{ID: connID, Username: entry.Username})
		}
		return true
	})
	return members
}
