package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := NewBroadcaster(logger)

	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	require.Equal(t, 2, b.Clients())

	b.Publish(SubjectPostDeleted, PostEvent{PostID: "p1"})

	for _, ch := range []<-chan SSEEvent{ch1, ch2} {
		ev := <-ch
		assert.Equal(t, SubjectPostDeleted, ev.Event)
		assert.Contains(t, string(ev.Data), `"post_id":"p1"`)
	}

	b.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, b.Clients())

	b.Close()
	_, open = <-ch2
	assert.False(t, open)
	assert.Equal(t, 0, b.Clients())
}

func TestBroadcasterDropsForLaggingSubscriber(t *testing.T) {
	logger, hook := test.NewNullLogger()
	b := NewBroadcaster(logger)
	_, ch := b.Subscribe()

	for i := 0; i < clientBuffer+5; i++ {
		b.Publish(SubjectPostCreated, PostEvent{PostID: "p"})
	}

	assert.Len(t, ch, clientBuffer)
	assert.NotEmpty(t, hook.AllEntries(), "dropped events are logged")
}

func TestMultiPublisherFansOut(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, b := NewBroadcaster(logger), NewBroadcaster(logger)
	_, chA := a.Subscribe()
	_, chB := b.Subscribe()

	MultiPublisher{a, NopPublisher{}, b}.Publish(SubjectUserRegistered, UserEvent{UserID: "u1"})

	assert.Len(t, chA, 1)
	assert.Len(t, chB, 1)
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := NewBroadcaster(logger)
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription is registered before the headers are sent.
	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 10*time.Millisecond)
	b.Publish(SubjectPostUpdated, PostEvent{PostID: "p9"})

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	assert.Equal(t, "event: post.updated", strings.TrimSpace(eventLine))
	assert.True(t, strings.HasPrefix(dataLine, "data: {"))
	assert.Contains(t, dataLine, `"post_id":"p9"`)
}
