package interview

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
	"github.com/zhouzirui/z-interview/backend/internal/repository/memory"
	interviewsvc "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/ticket"
)

type scriptedSessions struct {
	mu      sync.Mutex
	senders map[string]interviewsvc.Sender
	handled []model.Inbound
	closed  chan string
}

func newScriptedSessions() *scriptedSessions {
	return &scriptedSessions{senders: make(map[string]interviewsvc.Sender), closed: make(chan string, 4)}
}

func (s *scriptedSessions) Start(_ context.Context, token string, out interviewsvc.Sender) error {
	if token == "bad" {
		_ = out.Send(model.NewError("session token not found"))
		return errors.New("session token not found")
	}
	s.mu.Lock()
	s.senders[token] = out
	s.mu.Unlock()
	return out.Send(model.NewQuestion("Explain goroutines.", 1, false))
}

func (s *scriptedSessions) Handle(_ context.Context, token string, msg model.Inbound) {
	s.mu.Lock()
	s.handled = append(s.handled, msg)
	out := s.senders[token]
	s.mu.Unlock()
	if msg.Type == model.TypePing {
		_ = out.Send(model.NewPong())
	}
}

func (s *scriptedSessions) Close(_ context.Context, token string) error {
	s.closed <- token
	return nil
}

func startWSServer(t *testing.T, sessions Sessions) string {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(nil, sessions, nil).RegisterRoutes(api)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocketSessionFlow(t *testing.T) {
	sessions := newScriptedSessions()
	base := startWSServer(t, sessions)
	conn := dial(t, base+"/api/interview/ws/tok-1")

	first := readMessage(t, conn)
	if first["type"] != "question" || first["questionIndex"] != float64(1) {
		t.Fatalf("unexpected first message: %v", first)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg["type"] != "error" || msg["message"] != "malformed message" {
		t.Fatalf("expected malformed error, got %v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, conn); msg["type"] != "pong" {
		t.Fatalf("expected pong, got %v", msg)
	}

	conn.Close()
	select {
	case token := <-sessions.closed:
		if token != "tok-1" {
			t.Fatalf("closed wrong token %q", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session was not closed after disconnect")
	}
}

func TestWebSocketSetupFailure(t *testing.T) {
	sessions := newScriptedSessions()
	base := startWSServer(t, sessions)
	conn := dial(t, base+"/api/interview/ws/bad")

	if msg := readMessage(t, conn); msg["type"] != "error" {
		t.Fatalf("expected error, got %v", msg)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}

	select {
	case token := <-sessions.closed:
		t.Fatalf("failed setup must not close a session, got %q", token)
	default:
	}
}

func TestWebSocketMissingToken(t *testing.T) {
	base := startWSServer(t, newScriptedSessions())
	conn := dial(t, base+"/api/interview/ws")

	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["message"] != "missing session token" {
		t.Fatalf("unexpected message: %v", msg)
	}
}

type oneQuestion struct{}

func (oneQuestion) Questions(context.Context, string) (*model.QuestionSet, error) {
	return &model.QuestionSet{PresetID: "go-backend", Questions: []string{"Explain goroutines."}}, nil
}

// gatedSynth blocks the first synthesis until release is closed.
type gatedSynth struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(text), nil
}

type savedResults struct {
	*memory.Store
	saved chan string
}

func (s *savedResults) SaveResult(ctx context.Context, r model.CompletedInterview) error {
	if err := s.Store.SaveResult(ctx, r); err != nil {
		return err
	}
	s.saved <- r.ID
	return nil
}

func TestWebSocketClientLeavesDuringSetup(t *testing.T) {
	store := memory.NewStore()
	presets := preset.NewMemoryStore(preset.Seed())
	tickets := ticket.NewService(store, presets, time.Hour)
	results := &savedResults{Store: store, saved: make(chan string, 2)}
	synth := &gatedSynth{entered: make(chan struct{}), release: make(chan struct{})}

	orch := interviewsvc.NewOrchestrator(interviewsvc.Dependencies{
		Tickets:   tickets,
		Questions: oneQuestion{},
		Audio:     interviewsvc.NewAudioService(nil, synth, 1),
		Finalizer: interviewsvc.NewFinalizer(nil, results, presets, nil),
	}, interviewsvc.Config{})
	t.Cleanup(orch.Wait)

	ctx := context.Background()
	user, err := tickets.CreateUser(ctx, "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	issued, err := tickets.Issue(ctx, user.ID, "go-backend")
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}

	base := startWSServer(t, orch)
	conn := dial(t, base+"/api/interview/ws/"+issued.Token)

	select {
	case <-synth.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first question synthesis never started")
	}
	conn.Close()
	close(synth.release)

	select {
	case <-results.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("interview was not finalized after the client left")
	}

	deadline := time.Now().Add(2 * time.Second)
	for orch.Registry.Len() != 0 || !ticketInvalid(tickets, issued.Token) {
		if time.Now().After(deadline) {
			t.Fatalf("session not released: registry=%d", orch.Registry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case id := <-results.saved:
		t.Fatalf("interview finalized twice, extra result %s", id)
	default:
	}
}

func ticketInvalid(tickets *ticket.Service, token string) bool {
	_, err := tickets.Validate(context.Background(), token)
	return errors.Is(err, ticket.ErrTicketInactive)
}
