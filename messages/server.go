package messages

import (
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
)

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeGeminiError    = "GEMINI_ERROR"
	ErrCodeVoiceFailed    = "VOICE_FAILED"
	ErrCodeUnknownModule  = "UNKNOWN_MODULE"
	ErrCodeVoiceNotOpen   = "VOICE_NOT_OPEN"
)

// Server message types
const (
	TypeState      = "state"
	TypeLog        = "log"
	TypeSignal     = "signal"
	TypeVoice      = "voice"
	TypeReply      = "reply"
	TypeAudio      = "audio"
	TypeMedia      = "media"
	TypeTranscript = "transcript"
	TypeError      = "error"
	TypePong       = "pong"
)

// ServerMessage represents a message sent to the dashboard
type ServerMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// VoicePayload reports the voice link state
type VoicePayload struct {
	State   string `json:"state"` // "idle", "connecting", "open", "closed", "error"
	Message string `json:"message,omitempty"`
}

// ReplyPayload is an assistant answer
type ReplyPayload struct {
	Mode    string          `json:"mode"`
	Text    string          `json:"text"`
	Sources []gemini.Source `json:"sources,omitempty"`
}

// AudioPayload contains audio data for the dashboard
type AudioPayload struct {
	Data     string `json:"data"`     // Base64-encoded PCM audio
	MimeType string `json:"mimeType"` // "audio/pcm;rate=24000"
}

// MediaPayload contains a generated image or video
type MediaPayload struct {
	Kind     string `json:"kind"` // "image" or "video"
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // Base64
}

// TranscriptPayload is live transcription from the voice link
type TranscriptPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewStateMessage(s device.Snapshot) *ServerMessage {
	return &ServerMessage{Type: TypeState, Payload: s}
}

func NewLogMessage(e device.Entry) *ServerMessage {
	return &ServerMessage{Type: TypeLog, Payload: e}
}

func NewSignalMessage(points []device.Point) *ServerMessage {
	return &ServerMessage{Type: TypeSignal, Payload: points}
}

// NewVoiceMessage creates a voice link status message
func NewVoiceMessage(state, message string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeVoice,
		Payload: VoicePayload{State: state, Message: message},
	}
}

// NewReplyMessage creates an assistant answer correlated to request id
func NewReplyMessage(id, mode, text string, sources []gemini.Source) *ServerMessage {
	return &ServerMessage{
		Type:    TypeReply,
		ID:      id,
		Payload: ReplyPayload{Mode: mode, Text: text, Sources: sources},
	}
}

// NewAudioMessage creates an audio response message
func NewAudioMessage(id, data, mimeType string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeAudio,
		ID:      id,
		Payload: AudioPayload{Data: data, MimeType: mimeType},
	}
}

// NewMediaMessage creates a generated media message
func NewMediaMessage(id, kind, mimeType, data string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeMedia,
		ID:      id,
		Payload: MediaPayload{Kind: kind, MimeType: mimeType, Data: data},
	}
}

func NewTranscriptMessage(role, text string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeTranscript,
		Payload: TranscriptPayload{Role: role, Text: text},
	}
}

func NewPongMessage(id string) *ServerMessage {
	return &ServerMessage{Type: TypePong, ID: id}
}

// NewErrorMessage creates an error message
func NewErrorMessage(id, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeError,
		ID:      id,
		Payload: ErrorPayload{Code: code, Message: message},
	}
}
