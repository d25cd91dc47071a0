package interview

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	interviewsvc "github.com/zhouzirui/z-interview/backend/internal/service/interview"
)

const (
	writeWait = 10 * time.Second
	// 音频回答以 base64 内联，需要放宽单帧上限
	maxMessageSize = 16 << 20
)

var errConnClosed = errors.New("connection closed")

// connSender serializes writes from the read loop, async audio sends and the
// ping loop onto one connection.
type connSender struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newConnSender(conn *websocket.Conn) *connSender {
	return &connSender{conn: conn}
}

func (s *connSender) Send(msg model.Outbound) error {
	if s.closed.Load() {
		return errConnClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.closed.Store(true)
		return err
	}
	return nil
}

func (s *connSender) Closed() bool {
	return s.closed.Load()
}

func (s *connSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *connSender) close() {
	s.closed.Store(true)
}

// handleMissingToken 升级后发送一条错误再关闭
func (h *Handler) handleMissingToken(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	_ = newConnSender(conn).Send(model.NewError("missing session token"))
	closeConn(conn, websocket.ClosePolicyViolation, "missing session token")
}

// handleWebSocket 处理一场面试的 WebSocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := newConnSender(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.sessions.Start(ctx, token, out); err != nil {
		if errors.Is(err, interviewsvc.ErrFirstQuestionUndelivered) {
			log.Printf("[ws] client left during setup token=%s: %v", token, err)
			return
		}
		log.Printf("[ws] session setup failed token=%s: %v", token, err)
		closeConn(conn, websocket.ClosePolicyViolation, "session setup failed")
		return
	}
	log.Printf("[ws] connected token=%s", token)

	defer func() {
		out.close()
		if err := h.sessions.Close(context.WithoutCancel(ctx), token); err != nil {
			log.Printf("[ws] close session token=%s: %v", token, err)
		}
		log.Printf("[ws] disconnected token=%s", token)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, out)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error token=%s: %v", token, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		msg, err := model.ParseInbound(data)
		if err != nil {
			_ = out.Send(model.NewError("malformed message"))
			continue
		}
		h.sessions.Handle(ctx, token, msg)
	}
}

// pingLoop 定期发送 ping 保持连接
func (h *Handler) pingLoop(ctx context.Context, out *connSender) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if out.Closed() {
				return
			}
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
