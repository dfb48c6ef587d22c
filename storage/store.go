package storage

// Store is the client message registry: one bounded FIFO of inbound payloads
// per connected client.
//
// Implementations are owned by the session's poll loop and need no locking.
type Store interface {
	// AddClient starts tracking id. Adding a tracked id keeps its queue.
	// It returns false when the client capacity is exhausted.
	AddClient(id uint8) bool

	// RemoveClient drops id and its queued messages. Unknown ids are ignored.
	RemoveClient(id uint8) bool

	HasClient(id uint8) bool

	// Push queues a copy of payload for id, truncated to the message
	// capacity, evicting the oldest message when the queue is full. It
	// returns false when id is not tracked.
	Push(id uint8, payload []byte) bool

	// Next removes and returns the oldest message queued for id.
	Next(id uint8) ([]byte, bool)

	Len(id uint8) int
	Clients() []uint8

	// Clear drops every client.
	Clear()

	// Snapshot renders the registry as a JSON document.
	Snapshot() ([]byte, error)
}
