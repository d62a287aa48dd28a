package messages

import "encoding/json"

// Client message types
const (
	TypeSelectModule  = "select_module"
	TypeToggleScan    = "toggle_scan"
	TypeToggleGhost   = "toggle_ghost"
	TypeVoiceStart    = "voice_start"
	TypeVoiceStop     = "voice_stop"
	TypeVoiceText     = "voice_text"
	TypeChat          = "chat"
	TypeSpeak         = "speak"
	TypeTranscribe    = "transcribe"
	TypeGenerateImage = "generate_image"
	TypeGenerateVideo = "generate_video"
	TypePing          = "ping"
)

// Chat modes
const (
	ChatStandard = "standard"
	ChatThinking = "thinking"
	ChatSearch   = "search"
	ChatMaps     = "maps"
)

// ClientMessage represents a message from the dashboard
type ClientMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"` // echoed on the reply
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SelectModulePayload picks the active module
type SelectModulePayload struct {
	Module string `json:"module"`
}

// VoiceTextPayload is a typed turn for the open voice link
type VoiceTextPayload struct {
	Text string `json:"text"`
}

// ChatPayload is one assistant prompt
type ChatPayload struct {
	Mode string   `json:"mode"` // "standard", "thinking", "search", "maps"
	Text string   `json:"text"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// SpeakPayload asks for text-to-speech
type SpeakPayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// TranscribePayload carries a WAV recording
type TranscribePayload struct {
	Data string `json:"data"` // Base64-encoded WAV
}

// ImagePayload asks for an image
type ImagePayload struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

// VideoPayload asks for a video, optionally from a start frame
type VideoPayload struct {
	Prompt      string `json:"prompt"`
	Image       string `json:"image,omitempty"` // Base64-encoded PNG
	AspectRatio string `json:"aspectRatio,omitempty"`
}
