package ws

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stock_screener/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	mu   sync.Mutex
	snap models.RunProgress
	subs []chan models.RunProgress
}

func (f *fakeFeed) Snapshot() models.RunProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeFeed) Subscribe() (<-chan models.RunProgress, func()) {
	ch := make(chan models.RunProgress, 4)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeFeed) push(p models.RunProgress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = p
	for _, ch := range f.subs {
		ch <- p
	}
}

func (f *fakeFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func TestHubStreamsSnapshots(t *testing.T) {
	feed := &fakeFeed{snap: models.IdleProgress()}
	srv := httptest.NewServer(NewHub(feed))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first StatusMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, models.StatusIdle, first.Status)

	require.Eventually(t, func() bool { return feed.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	feed.push(models.RunProgress{RunID: "r1", Status: models.StatusRunning, Total: 4, Done: 1})

	var next StatusMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, StatusMessage{
		Status:   models.StatusRunning,
		Progress: "25%",
		Percent:  25,
		Done:     1,
		Total:    4,
		RunID:    "r1",
	}, next)
}

func TestNewStatusMessage(t *testing.T) {
	msg := NewStatusMessage(models.RunProgress{Status: models.StatusRunning, Total: 3, Done: 2, FailedBatches: 1})

	assert.Equal(t, "66.67%", msg.Progress)
	assert.Equal(t, 66.67, msg.Percent)
	assert.Equal(t, 1, msg.FailedBatches)
}
