package storage

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/luma/esplink/internal/ring"
)

const (
	DefaultMaxClients      = 2
	DefaultMaxMessages     = 4
	DefaultMessageCapacity = 64
)

type Options struct {
	// MaxClients is the number of clients tracked at once.
	MaxClients int

	// MaxMessages is the queue depth per client.
	MaxMessages int

	// MessageCapacity is the number of bytes kept per message.
	MessageCapacity int
}

type clientQueue struct {
	id       uint8
	messages *ring.Ring[[]byte]
}

type InmemoryStore struct {
	clients []*clientQueue

	maxClients  int
	maxMessages int
	msgCap      int
}

func NewInmemoryStore(options Options) *InmemoryStore {
	if options.MaxClients < 1 {
		options.MaxClients = DefaultMaxClients
	}

	if options.MaxMessages < 1 {
		options.MaxMessages = DefaultMaxMessages
	}

	if options.MessageCapacity < 1 {
		options.MessageCapacity = DefaultMessageCapacity
	}

	return &InmemoryStore{
		clients:     make([]*clientQueue, 0, options.MaxClients),
		maxClients:  options.MaxClients,
		maxMessages: options.MaxMessages,
		msgCap:      options.MessageCapacity,
	}
}

func (i *InmemoryStore) AddClient(id uint8) bool {
	if i.find(id) != nil {
		return true
	}

	if len(i.clients) == i.maxClients {
		return false
	}

	i.clients = append(i.clients, &clientQueue{
		id:       id,
		messages: ring.New[[]byte](i.maxMessages),
	})

	return true
}

func (i *InmemoryStore) RemoveClient(id uint8) bool {
	for idx, q := range i.clients {
		if q.id != id {
			continue
		}

		// Order is irrelevant: swap with the last entry.
		last := len(i.clients) - 1
		i.clients[idx] = i.clients[last]
		i.clients[last] = nil
		i.clients = i.clients[:last]

		return true
	}

	return false
}

func (i *InmemoryStore) HasClient(id uint8) bool {
	return i.find(id) != nil
}

func (i *InmemoryStore) Push(id uint8, payload []byte) bool {
	q := i.find(id)
	if q == nil {
		return false
	}

	n := len(payload)
	if n > i.msgCap {
		n = i.msgCap
	}

	msg := make([]byte, n)
	copy(msg, payload)
	q.messages.Push(msg)

	return true
}

func (i *InmemoryStore) Next(id uint8) ([]byte, bool) {
	q := i.find(id)
	if q == nil {
		return nil, false
	}

	return q.messages.Pop()
}

func (i *InmemoryStore) Len(id uint8) int {
	q := i.find(id)
	if q == nil {
		return 0
	}

	return q.messages.Len()
}

func (i *InmemoryStore) Clients() []uint8 {
	ids := make([]uint8, 0, len(i.clients))
	for _, q := range i.clients {
		ids = append(ids, q.id)
	}

	return ids
}

func (i *InmemoryStore) Clear() {
	for idx := range i.clients {
		i.clients[idx] = nil
	}

	i.clients = i.clients[:0]
}

func (i *InmemoryStore) Snapshot() (doc []byte, err error) {
	doc = []byte(`{"clients":[]}`)

	if doc, err = sjson.SetBytes(doc, "maxClients", i.maxClients); err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, "maxMessages", i.maxMessages); err != nil {
		return nil, err
	}

	if doc, err = sjson.SetBytes(doc, "messageCapacity", i.msgCap); err != nil {
		return nil, err
	}

	for idx, q := range i.clients {
		if doc, err = sjson.SetBytes(doc, fmt.Sprintf("clients.%d.id", idx), q.id); err != nil {
			return nil, err
		}

		if doc, err = sjson.SetBytes(doc, fmt.Sprintf("clients.%d.queued", idx), q.messages.Len()); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func (i *InmemoryStore) find(id uint8) *clientQueue {
	for _, q := range i.clients {
		if q.id == id {
			return q
		}
	}

	return nil
}

var _ Store = (*InmemoryStore)(nil)
