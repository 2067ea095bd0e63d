package realtime

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker(quietLogger())
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	require.Equal(t, 2, b.Subscribers())

	b.Publish(Message{Type: SectionDeleted, Payload: map[string]int64{"id": 3}})

	for _, ch := range []<-chan []byte{ch1, ch2} {
		raw := <-ch
		var got struct {
			Type    string           `json:"type"`
			Payload map[string]int64 `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, SectionDeleted, got.Type)
		assert.Equal(t, int64(3), got.Payload["id"])
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(quietLogger())
	id, ch := b.Subscribe()

	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())

	// second call is a no-op
	b.Unsubscribe(id)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := NewBroker(quietLogger())
	_, ch := b.Subscribe()

	for i := 0; i < cap(ch)+5; i++ {
		b.Publish(Message{Type: SectionUpdated, Payload: i})
	}
	assert.Equal(t, cap(ch), len(ch))
}
