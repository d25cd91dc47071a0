package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-interview/backend/internal/model/speech"
)

const defaultTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

const (
	resourceTTSDefault = "volc.service_type.10029"
	resourceTTSMega    = "volc.megatts.default"
	resourceTTSSeed    = "seed-tts-2.0"
)

// ttsClient 火山引擎单向流式 TTS
type ttsClient struct {
	cfg      *speech.Config
	dialer   *websocket.Dialer
	endpoint string
}

func newTTSClient(cfg *speech.Config) *ttsClient {
	endpoint := strings.TrimSpace(cfg.TTSEndpoint)
	if endpoint == "" {
		endpoint = defaultTTSEndpoint
	}
	return &ttsClient{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: endpoint,
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerPayload struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// synthesize tries every resource id compatible with the voice and returns
// mp3 bytes from the first that accepts it.
func (c *ttsClient) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}
	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return nil, err
	}

	speaker := strings.TrimSpace(voice)
	if speaker == "" {
		speaker = strings.TrimSpace(c.cfg.TTSVoice)
	}

	var lastErr error
	for i, resourceID := range ttsResourceCandidates(speaker) {
		audio, err := c.synthesizeWithResource(ctx, appID, token, resourceID, speaker, text)
		if err == nil {
			if i > 0 {
				log.Printf("[speech] voice %s succeeded with fallback resource %s", speaker, resourceID)
			}
			return audio, nil
		}
		if !isResourceMismatch(err) {
			return nil, err
		}
		log.Printf("[speech] voice %s resource %s mismatch: %v", speaker, resourceID, err)
		lastErr = err
	}
	return nil, lastErr
}

func (c *ttsClient) synthesizeWithResource(ctx context.Context, appID, token, resourceID, speaker, text string) ([]byte, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	payload, err := json.Marshal(c.buildRequest(connectID, speaker, text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	request := &frame{kind: frameFullClient, serial: serialJSON, payload: payload}
	data, err := request.marshal()
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var audio bytes.Buffer
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		f, err := unmarshalFrame(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS frame: %w", err)
		}

		switch f.kind {
		case frameError:
			return nil, fmt.Errorf("TTS error %d: %s", f.errorCode, string(f.payload))
		case frameAudioServer:
			audio.Write(f.payload)
		case frameFullServer:
			var resp ttsServerPayload
			if len(f.payload) > 0 && json.Unmarshal(f.payload, &resp) == nil {
				if resp.Code != 0 && resp.Code != 3000 {
					return nil, fmt.Errorf("TTS error %d: %s", resp.Code, resp.Message)
				}
				if resp.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(resp.Data)
					if err != nil {
						return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
					}
					audio.Write(chunk)
				}
			}
			if f.finished() || resp.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, fmt.Errorf("TTS audio is empty")
				}
				return audio.Bytes(), nil
			}
		default:
			log.Printf("[speech] unexpected TTS frame type: %d", f.kind)
		}
	}
}

func (c *ttsClient) buildRequest(uid, speaker, text string) *ttsRequest {
	req := &ttsRequest{}
	req.User.UID = uid
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.Language = strings.TrimSpace(c.cfg.TTSLanguage)
	req.ReqParams.AudioParams.Format = "mp3"
	req.ReqParams.AudioParams.SampleRate = 24000
	if c.cfg.TTSSpeed > 0 && c.cfg.TTSSpeed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = c.cfg.TTSSpeed
	}
	if c.cfg.TTSVolume > 0 && c.cfg.TTSVolume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = c.cfg.TTSVolume
	}
	return req
}

// ttsResourceCandidates 根据音色名称推断可用的资源 ID，按优先级排序
func ttsResourceCandidates(voice string) []string {
	if strings.HasPrefix(voice, "S_") {
		return []string{resourceTTSMega}
	}
	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{resourceTTSSeed, resourceTTSDefault}
		}
	}
	return []string{resourceTTSDefault, resourceTTSSeed}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}

func resolveCredentials(cfg *speech.Config) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("火山引擎语音配置未初始化")
	}
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken")
	}
	return appID, token, nil
}
