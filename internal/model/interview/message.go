package interview

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageType 区分上下行消息的 type 字段
type MessageType string

const (
	TypePing           MessageType = "ping"
	TypeQuestionAnswer MessageType = "questionAnswer"
	TypeFollowupAnswer MessageType = "followupAnswer"

	TypePong              MessageType = "pong"
	TypeQuestion          MessageType = "question"
	TypeFollowup          MessageType = "followup"
	TypeAudio             MessageType = "audio"
	TypeAudioFailed       MessageType = "audioFailed"
	TypeInterviewComplete MessageType = "interviewComplete"
	TypeError             MessageType = "error"
)

// ErrMalformedMessage is returned when an inbound frame is not a JSON object
// with a type field.
var ErrMalformedMessage = errors.New("malformed message")

// Inbound 客户端上行消息。questionAnswer 与 followupAnswer 共用同一组字段。
type Inbound struct {
	Type          MessageType `json:"type"`
	Content       string      `json:"content,omitempty"`
	Code          string      `json:"code,omitempty"`
	Whiteboard    string      `json:"whiteboard,omitempty"`
	Audio         string      `json:"audio,omitempty"`
	AudioMimeType string      `json:"audioMimeType,omitempty"`
}

// ParseInbound decodes a raw websocket frame.
func ParseInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, ErrMalformedMessage
	}
	msg.Type = MessageType(strings.TrimSpace(string(msg.Type)))
	if msg.Type == "" {
		return Inbound{}, ErrMalformedMessage
	}
	return msg, nil
}

// HasAudio reports whether the client sent a recording instead of text.
func (m Inbound) HasAudio() bool {
	return strings.TrimSpace(m.Audio) != ""
}

// Outbound is implemented only by the message types in this file, which
// keeps the set of server messages closed.
type Outbound interface {
	Kind() MessageType
	outbound()
}

// Prompt is an outbound message that carries text worth speaking aloud.
type Prompt interface {
	Outbound
	PromptText() string
	WithAudio(encoded string) Outbound
}

type Pong struct {
	Type MessageType `json:"type"`
}

func NewPong() Pong { return Pong{Type: TypePong} }

func (Pong) Kind() MessageType { return TypePong }
func (Pong) outbound()         {}

// QuestionMessage 主问题（也用于主问题阶段的澄清回复）
type QuestionMessage struct {
	Type          MessageType `json:"type"`
	Question      string      `json:"question"`
	QuestionIndex int         `json:"questionIndex"`
	ResetEditor   bool        `json:"resetEditor,omitempty"`
	Audio         string      `json:"audio,omitempty"`
}

func NewQuestion(text string, index int, resetEditor bool) QuestionMessage {
	return QuestionMessage{Type: TypeQuestion, Question: text, QuestionIndex: index, ResetEditor: resetEditor}
}

func (QuestionMessage) Kind() MessageType   { return TypeQuestion }
func (QuestionMessage) outbound()           {}
func (m QuestionMessage) PromptText() string { return m.Question }

func (m QuestionMessage) WithAudio(encoded string) Outbound {
	m.Audio = encoded
	return m
}

// FollowupMessage 追问（也用于追问阶段的澄清回复）
type FollowupMessage struct {
	Type     MessageType    `json:"type"`
	Followup FollowupRecord `json:"followup"`
	Audio    string         `json:"audio,omitempty"`
}

func NewFollowup(record FollowupRecord) FollowupMessage {
	return FollowupMessage{Type: TypeFollowup, Followup: record}
}

func (FollowupMessage) Kind() MessageType   { return TypeFollowup }
func (FollowupMessage) outbound()           {}
func (m FollowupMessage) PromptText() string { return m.Followup.Question }

func (m FollowupMessage) WithAudio(encoded string) Outbound {
	m.Audio = encoded
	return m
}

// AudioMessage 文本先行发送后补发的音频
type AudioMessage struct {
	Type  MessageType `json:"type"`
	Audio string      `json:"audio"`
}

func NewAudio(encoded string) AudioMessage { return AudioMessage{Type: TypeAudio, Audio: encoded} }

func (AudioMessage) Kind() MessageType { return TypeAudio }
func (AudioMessage) outbound()         {}

type AudioFailed struct {
	Type MessageType `json:"type"`
}

func NewAudioFailed() AudioFailed { return AudioFailed{Type: TypeAudioFailed} }

func (AudioFailed) Kind() MessageType { return TypeAudioFailed }
func (AudioFailed) outbound()         {}

// InterviewComplete carries the persisted result id, or null when nothing
// could be persisted.
type InterviewComplete struct {
	Type     MessageType `json:"type"`
	ResultID *string     `json:"resultId"`
}

func NewInterviewComplete(resultID string) InterviewComplete {
	msg := InterviewComplete{Type: TypeInterviewComplete}
	if resultID != "" {
		msg.ResultID = &resultID
	}
	return msg
}

func (InterviewComplete) Kind() MessageType { return TypeInterviewComplete }
func (InterviewComplete) outbound()         {}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

func (ErrorMessage) Kind() MessageType { return TypeError }
func (ErrorMessage) outbound()         {}
