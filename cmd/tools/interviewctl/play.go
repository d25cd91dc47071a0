package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

var (
	playServer string
	playName   string
	playPreset string
	playToken  string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run an interview in the terminal, one answer per line",
	Long: `play provisions a user and a session ticket (unless --token is given),
opens the interview websocket and reads answers from stdin. Each line is sent
as the answer to the most recent question or follow-up.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playServer, "server", "http://localhost:8080", "backend base URL")
	playCmd.Flags().StringVar(&playName, "name", "candidate", "user name to register")
	playCmd.Flags().StringVar(&playPreset, "preset", "go-backend", "interview preset id")
	playCmd.Flags().StringVar(&playToken, "token", "", "existing session token, skips provisioning")
}

// serverMessage 是所有下行消息字段的并集
type serverMessage struct {
	Type          model.MessageType     `json:"type"`
	Question      string                `json:"question"`
	QuestionIndex int                   `json:"questionIndex"`
	Followup      *model.FollowupRecord `json:"followup"`
	Audio         string                `json:"audio"`
	ResultID      *string               `json:"resultId"`
	Message       string                `json:"message"`
}

type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	base := strings.TrimRight(playServer, "/")
	client := &apiClient{base: base, http: http.DefaultClient}

	token := playToken
	if token == "" {
		var user model.User
		if err := client.post(ctx, "/api/users", map[string]string{"name": playName}, &user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		var ticket model.Ticket
		if err := client.post(ctx, "/api/interview/sessions", map[string]string{"userId": user.ID, "presetId": playPreset}, &ticket); err != nil {
			return fmt.Errorf("issue session: %w", err)
		}
		token = ticket.Token
		fmt.Printf("session %s (user %s, preset %s)\n", token, user.ID, playPreset)
	}

	wsURL, err := websocketURL(base, token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	var (
		mu       sync.Mutex
		expected = model.TypeQuestionAnswer
		resultID *string
	)
	done := make(chan error, 1)

	go func() {
		for {
			var msg serverMessage
			if err := conn.ReadJSON(&msg); err != nil {
				done <- err
				return
			}
			switch msg.Type {
			case model.TypeQuestion:
				mu.Lock()
				expected = model.TypeQuestionAnswer
				mu.Unlock()
				fmt.Printf("\nQ%d: %s%s\n> ", msg.QuestionIndex, msg.Question, audioNote(msg.Audio))
			case model.TypeFollowup:
				mu.Lock()
				expected = model.TypeFollowupAnswer
				mu.Unlock()
				fmt.Printf("\n  follow-up: %s%s\n> ", msg.Followup.Question, audioNote(msg.Audio))
			case model.TypeAudio:
				fmt.Printf("  [audio %d bytes]\n> ", len(msg.Audio)*3/4)
			case model.TypeAudioFailed:
				fmt.Print("  [audio unavailable]\n> ")
			case model.TypeError:
				fmt.Printf("  ! %s\n> ", msg.Message)
			case model.TypeInterviewComplete:
				mu.Lock()
				resultID = msg.ResultID
				mu.Unlock()
				done <- nil
				return
			}
		}
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			mu.Lock()
			kind := expected
			mu.Unlock()
			if err := conn.WriteJSON(model.Inbound{Type: kind, Content: line}); err != nil {
				done <- err
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}()

	if err := <-done; err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
			fmt.Println("\ninterview ended early")
			return nil
		}
		return fmt.Errorf("interview connection: %w", err)
	}

	mu.Lock()
	id := resultID
	mu.Unlock()
	if id == nil {
		fmt.Println("\ninterview complete, but no result was saved")
		return nil
	}

	var result model.CompletedInterview
	if err := client.get(ctx, "/api/interview/results/"+url.PathEscape(*id), &result); err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}
	fmt.Printf("\ninterview complete: score %d/100 in %ds\n%s\n", result.Score, result.ElapsedSeconds, result.Feedback)
	return nil
}

func websocketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/interview/ws/" + url.PathEscape(token)
	return u.String(), nil
}

func audioNote(audio string) string {
	if audio == "" {
		return ""
	}
	return " [audio]"
}
