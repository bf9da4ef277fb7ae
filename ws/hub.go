package ws

import (
	"net/http"
	"strconv"
	"time"

	"stock_screener/models"
	"stock_screener/utils"

	"github.com/gorilla/websocket"
)

const (
	HeartbeatInterval = 10 * time.Second
	writeWait         = 5 * time.Second
	pongWait          = 2 * HeartbeatInterval
)

// ProgressFeed is the runner side of the hub.
type ProgressFeed interface {
	Snapshot() models.RunProgress
	Subscribe() (<-chan models.RunProgress, func())
}

// Hub streams run progress to websocket clients. Each client gets the
// current snapshot on connect and every update after it.
type Hub struct {
	feed     ProgressFeed
	upgrader websocket.Upgrader
}

func NewHub(feed ProgressFeed) *Hub {
	return &Hub{
		feed: feed,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Logger.Warnw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	if err := h.send(conn, h.feed.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(conn, p); err != nil {
				utils.Logger.Debugw("Dropping websocket client", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readLoop consumes control frames so pongs and close frames are handled.
func (h *Hub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, p models.RunProgress) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(NewStatusMessage(p))
}

// StatusMessage is the payload of both /status and the websocket feed.
type StatusMessage struct {
	Status        string  `json:"status"`
	Progress      string  `json:"progress"`
	Percent       float64 `json:"percent"`
	Done          int     `json:"done"`
	Total         int     `json:"total"`
	FailedBatches int     `json:"failed_batches"`
	RunID         string  `json:"run_id,omitempty"`
}

func NewStatusMessage(p models.RunProgress) StatusMessage {
	pct := p.Percent()
	return StatusMessage{
		Status:        p.Status,
		Progress:      formatPercent(pct),
		Percent:       pct,
		Done:          p.Done,
		Total:         p.Total,
		FailedBatches: p.FailedBatches,
		RunID:         p.RunID,
	}
}

func formatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}
