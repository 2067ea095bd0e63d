package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types published on the score feed.
const (
	SectionFinished = "section.finished"
	SectionUpdated  = "section.updated"
	SectionDeleted  = "section.deleted"
)

// Message defines the shape of our real-time data.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broker is the central hub for score feed subscribers.
type Broker struct {
	// Each subscriber gets a buffered channel keyed by a random id.
	clients map[uuid.UUID]chan []byte
	mu      sync.RWMutex
	log     *logrus.Logger
}

// NewBroker creates a new Broker instance.
func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		clients: make(map[uuid.UUID]chan []byte),
		log:     logger,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (b *Broker) Subscribe() (uuid.UUID, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan []byte, 16)
	b.clients[id] = ch
	b.log.WithField("subscriber", id).Debug("score feed subscriber connected")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(ch)
		b.log.WithField("subscriber", id).Debug("score feed subscriber disconnected")
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends a message to every subscriber. Sends never block: a subscriber
// whose buffer is full misses the message.
func (b *Broker) Publish(message Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		b.log.WithError(err).Error("could not marshal score feed message")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.clients {
		select {
		case ch <- jsonMsg:
		default:
			b.log.WithField("subscriber", id).Warn("score feed channel is full, dropping message")
		}
	}
}
