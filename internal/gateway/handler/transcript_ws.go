package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"deepbuild/internal/types"
)

const (
	transcriptWSWriteWait = 10 * time.Second
	transcriptWSPongWait  = 60 * time.Second
	transcriptWSPingEvery = (transcriptWSPongWait * 9) / 10
)

var transcriptWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type transcriptWSOutbound struct {
	Type    string                   `json:"type"`
	Message *types.TranscriptMessage `json:"message,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// transcriptWS streams transcript messages. ?from=N skips the first N
// messages; the default replays the whole history.
func (h *Handler) transcriptWS(w http.ResponseWriter, r *http.Request) {
	id := projectID(r)
	if _, err := h.orch.Project(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "from must be a non-negative integer", http.StatusBadRequest)
			return
		}
		from = n
	}

	conn, err := transcriptWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(transcriptWSPongWait)); err != nil {
		log.Printf("transcript ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(transcriptWSPongWait))
	})

	// Reader: only control frames are expected; a read error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := h.transcript.Subscribe(ctx, id, from)
	ticker := time.NewTicker(transcriptWSPingEvery)
	defer ticker.Stop()

	write := func(out transcriptWSOutbound) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(transcriptWSWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(out) == nil
	}
	if !write(transcriptWSOutbound{Type: "subscribed"}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub:
			if !ok {
				return
			}
			if !write(transcriptWSOutbound{Type: "message", Message: &m}) {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(transcriptWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
