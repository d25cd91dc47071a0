package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-interview/backend/internal/model/speech"
)

const defaultASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

const (
	resourceASRDuration   = "volc.bigasr.sauc.duration"
	resourceASRConcurrent = "volc.bigasr.sauc.concurrent"
)

// 16kHz 16bit 单声道约 200ms
const asrChunkSize = 6400

// asrClient 火山引擎大模型流式输入识别
type asrClient struct {
	cfg           *speech.Config
	dialer        *websocket.Dialer
	endpoint      string
	chunkInterval time.Duration
}

func newASRClient(cfg *speech.Config) *asrClient {
	endpoint := strings.TrimSpace(cfg.ASREndpoint)
	if endpoint == "" {
		endpoint = defaultASREndpoint
	}
	return &asrClient{
		cfg:           cfg,
		dialer:        &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint:      endpoint,
		chunkInterval: 200 * time.Millisecond,
	}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
	} `json:"request"`
}

type asrServerPayload struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
}

// transcribe 发送整段音频并等待最终识别结果；发送与接收并发进行
func (c *asrClient) transcribe(ctx context.Context, audio []byte, format audioFormat) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to send")
	}
	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return "", err
	}

	connectID := uuid.NewString()
	resourceID := resourceASRDuration
	if c.cfg.ConcurrentMode {
		resourceID = resourceASRConcurrent
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR websocket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(c.buildRequest(connectID, format))
	if err != nil {
		return "", fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	if err := writeFrame(conn, &frame{kind: frameFullClient, serial: serialJSON, compress: compressGzip, payload: payload}); err != nil {
		return "", fmt.Errorf("failed to send ASR request: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	g.Go(func() error {
		return c.sendAudio(gctx, conn, audio)
	})

	var text string
	g.Go(func() error {
		var err error
		text, err = c.receive(conn, connectID)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (c *asrClient) buildRequest(uid string, format audioFormat) *asrRequest {
	req := &asrRequest{}
	req.User.UID = uid
	req.Audio.Format = format.container
	req.Audio.Codec = format.codec
	req.Audio.Language = c.cfg.ASRLanguage
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	return req
}

// sendAudio splits audio into sequenced chunks; the full client request owns
// sequence 1.
func (c *asrClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for offset := 0; offset < len(audio); offset += asrChunkSize {
		end := min(offset+asrChunkSize, len(audio))
		f := &frame{
			kind:     frameAudioClient,
			flags:    flagSequence,
			serial:   serialRaw,
			compress: compressGzip,
			sequence: sequence,
			payload:  audio[offset:end],
		}
		if end == len(audio) {
			f.flags = flagLastSequence
			f.sequence = -sequence
		}
		if err := writeFrame(conn, f); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		if f.last() {
			return nil
		}
		sequence++

		if c.chunkInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.chunkInterval):
			}
		}
	}
	return nil
}

func (c *asrClient) receive(conn *websocket.Conn, connectID string) (string, error) {
	var text string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}
		f, err := unmarshalFrame(raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode ASR frame: %w", err)
		}

		switch f.kind {
		case frameError:
			return "", fmt.Errorf("ASR error %d: %s", f.errorCode, string(f.payload))
		case frameFullServer:
			var resp asrServerPayload
			if err := json.Unmarshal(f.payload, &resp); err != nil {
				log.Printf("[speech] failed to unmarshal ASR payload: %v", err)
				continue
			}
			if resp.Code != 0 && resp.Code != 20000000 {
				return "", fmt.Errorf("ASR error %d: %s", resp.Code, resp.Message)
			}
			if candidate := resultText(resp); candidate != "" {
				text = candidate
			}
			if f.last() || resp.Sequence < 0 {
				if text == "" {
					log.Printf("[speech] empty transcript for connect=%s", connectID)
				}
				return strings.TrimSpace(text), nil
			}
		}
	}
}

func resultText(resp asrServerPayload) string {
	if resp.Result.Text != "" {
		return resp.Result.Text
	}
	parts := make([]string, 0, len(resp.Result.Utterances))
	for _, u := range resp.Result.Utterances {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}

func writeFrame(conn *websocket.Conn, f *frame) error {
	data, err := f.marshal()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
