package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const keepAliveInterval = 30 * time.Second

// MonitorFeed supplies the live proctoring view of an exam.
type MonitorFeed interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*ws.SnapshotMessage, error)
	Subscribe(ctx context.Context, examID uuid.UUID) *service.Feed
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

type MonitorHandler struct {
	feed      MonitorFeed
	upgrader  websocket.Upgrader
	keepAlive time.Duration
	log       zerolog.Logger
}

func NewMonitorHandler(feed MonitorFeed, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		feed:      feed,
		upgrader:  buildUpgrader(allowedOrigins),
		keepAlive: keepAliveInterval,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExam godoc
// WS /ws/v1/admin/exams/:id/monitor
// Sends a snapshot, then forwards every violation and submission published
// for the exam until the proctor disconnects.
func (h *MonitorHandler) MonitorExam(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.feed.Snapshot(c.Request.Context(), examID)
	if err != nil {
		failExam(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Proctor attached to live monitor")

	ctx, cancel := context.WithCancel(c.Request.Context())
	readDone := make(chan struct{})
	defer func() {
		cancel()
		conn.Close()
		<-readDone
		log.Info().Msg("Proctor detached from live monitor")
	}()

	// Proctors never send anything meaningful; reading detects the close.
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			var discard map[string]any
			if err := ws.ReadJSON(conn, &discard); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("Unexpected close")
				}
				return
			}
		}
	}()

	if err := ws.WriteTyped(conn, snapshot); err != nil {
		return
	}

	feed := h.feed.Subscribe(ctx, examID)
	defer feed.Close()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-feed.Messages:
			if !ok {
				return
			}
			if err := ws.WriteRaw(conn, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteTyped(conn, ws.PingMessage{Type: ws.MessagePing}); err != nil {
				return
			}
		}
	}
}
