package main

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"pageinbox/internal/metrics"
	"pageinbox/internal/privacy"
	"pageinbox/internal/service"
)

// maxFrameBytes bounds client frames; a hex thread id is 48 bytes.
const maxFrameBytes = 512

const (
	livePingInterval = 30 * time.Second
	livePingTimeout  = 10 * time.Second
)

// handleWebsocket upgrades the request and runs one live session until the
// client goes away. The session ticker is tied to the connection context.
func (s *Server) handleWebsocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server write timeout would otherwise cut long-lived connections.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.cfg.Server.AllowedOrigins,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Websocket upgrade failed")
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxFrameBytes)

		uid := userID(r)
		entry := s.logger.WithField(service.LogFieldUserID, privacy.MaskUserID(uid))

		metrics.SetGauge(metrics.LiveConnections, float64(s.liveConns.Add(1)), nil, "Open live update connections")
		defer func() {
			metrics.SetGauge(metrics.LiveConnections, float64(s.liveConns.Add(-1)), nil, "Open live update connections")
		}()
		entry.Debug("Live channel opened")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		session := s.svc.Live.NewSession(uid, func(ctx context.Context, frame string) error {
			return conn.Write(ctx, websocket.MessageText, []byte(frame))
		})

		done := make(chan error, 1)
		go func() { done <- session.Run(ctx) }()
		go keepAlive(ctx, conn, cancel)

		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					entry.WithError(err).Debug("Live channel read ended")
				}
				break
			}
			if typ != websocket.MessageText {
				continue
			}
			if err := session.HandleFrame(ctx, string(data)); err != nil {
				entry.WithError(err).Debug("Live channel write failed")
				break
			}
		}

		cancel()
		<-done
		_ = conn.Close(websocket.StatusNormalClosure, "")
		entry.Debug("Live channel closed")
	}
}

// keepAlive pings the client until ctx ends and cancels the session when a
// pong does not arrive in time. Pongs are read by the session's read loop.
func keepAlive(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, livePingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}
