package server

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/messages"
	"github.com/room4-2/omnistream/session"
)

const (
	requestTimeout = 2 * time.Minute
	videoTimeout   = 10 * time.Minute
)

func (s *Server) handleMessage(c *Client, msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypePing:
		c.queueMessage(messages.NewPongMessage(msg.ID))

	case messages.TypeSelectModule:
		var p messages.SelectModulePayload
		if !decodePayload(c, msg, &p) {
			return
		}
		if err := s.device.SelectModule(p.Module); err != nil {
			code := messages.ErrCodeInvalidMessage
			if errors.Is(err, device.ErrUnknownModule) {
				code = messages.ErrCodeUnknownModule
			}
			c.queueMessage(messages.NewErrorMessage(msg.ID, code, err.Error()))
		}

	case messages.TypeToggleScan:
		s.device.ToggleScan()

	case messages.TypeToggleGhost:
		s.device.ToggleGhost()

	case messages.TypeVoiceStart:
		go func() {
			if _, err := s.voice.StartVoice(s.ctx); err != nil {
				c.log.Warn().Err(err).Msg("❌ Voice link failed to start")
				c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeVoiceFailed, err.Error()))
			}
		}()

	case messages.TypeVoiceStop:
		s.voice.StopVoice()

	case messages.TypeVoiceText:
		var p messages.VoiceTextPayload
		if !decodePayload(c, msg, &p) {
			return
		}
		if err := s.voice.SendText(p.Text); err != nil {
			code := messages.ErrCodeVoiceFailed
			if errors.Is(err, session.ErrNotOpen) {
				code = messages.ErrCodeVoiceNotOpen
			}
			c.queueMessage(messages.NewErrorMessage(msg.ID, code, err.Error()))
		}

	case messages.TypeChat:
		var p messages.ChatPayload
		if !decodePayload(c, msg, &p) {
			return
		}
		s.async(c, msg.ID, requestTimeout, func(ctx context.Context) (*messages.ServerMessage, error) {
			return s.chat(ctx, msg.ID, p)
		})

	case messages.TypeSpeak:
		var p messages.SpeakPayload
		if !decodePayload(c, msg, &p) {
			return
		}
		s.async(c, msg.ID, requestTimeout, func(ctx context.Context) (*messages.ServerMessage, error) {
			buf, err := s.assistant.Speak(ctx, p.Text, p.Voice)
			if err != nil {
				return nil, err
			}
			data := base64.StdEncoding.EncodeToString(audio.EncodePCM16(buf.Samples))
			return messages.NewAudioMessage(msg.ID, data, audio.MIMEType(buf.SampleRate)), nil
		})

	case messages.TypeTranscribe:
		var p messages.TranscribePayload
		if !decodePayload(c, msg, &p) {
			return
		}
		wav, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeInvalidMessage, "audio is not valid base64"))
			return
		}
		s.async(c, msg.ID, requestTimeout, func(ctx context.Context) (*messages.ServerMessage, error) {
			text, err := s.assistant.Transcribe(ctx, wav)
			if err != nil {
				return nil, err
			}
			return messages.NewReplyMessage(msg.ID, "transcribe", text, nil), nil
		})

	case messages.TypeGenerateImage:
		var p messages.ImagePayload
		if !decodePayload(c, msg, &p) {
			return
		}
		s.async(c, msg.ID, requestTimeout, func(ctx context.Context) (*messages.ServerMessage, error) {
			img, err := s.assistant.GenerateImage(ctx, p.Prompt, p.AspectRatio, p.ImageSize)
			if err != nil {
				return nil, err
			}
			return messages.NewMediaMessage(msg.ID, "image", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)), nil
		})

	case messages.TypeGenerateVideo:
		var p messages.VideoPayload
		if !decodePayload(c, msg, &p) {
			return
		}
		var frame []byte
		if p.Image != "" {
			var err error
			if frame, err = base64.StdEncoding.DecodeString(p.Image); err != nil {
				c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeInvalidMessage, "image is not valid base64"))
				return
			}
		}
		s.async(c, msg.ID, videoTimeout, func(ctx context.Context) (*messages.ServerMessage, error) {
			v, err := s.assistant.GenerateVideo(ctx, p.Prompt, frame, p.AspectRatio)
			if err != nil {
				return nil, err
			}
			return messages.NewMediaMessage(msg.ID, "video", v.MIMEType, base64.StdEncoding.EncodeToString(v.Data)), nil
		})

	default:
		c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeInvalidMessage, "unknown message type: "+msg.Type))
	}
}

func (s *Server) chat(ctx context.Context, id string, p messages.ChatPayload) (*messages.ServerMessage, error) {
	var (
		text    string
		sources []gemini.Source
		err     error
	)
	switch p.Mode {
	case messages.ChatThinking:
		text, err = s.assistant.Think(ctx, p.Text, string(s.device.Snapshot().Module))
	case messages.ChatSearch:
		text, sources, err = s.assistant.Search(ctx, p.Text)
	case messages.ChatMaps:
		var loc *gemini.LatLng
		if p.Lat != nil && p.Lng != nil {
			loc = &gemini.LatLng{Lat: *p.Lat, Lng: *p.Lng}
		}
		text, sources, err = s.assistant.Maps(ctx, p.Text, loc)
	case messages.ChatStandard, "":
		p.Mode = messages.ChatStandard
		text, err = s.assistant.Chat(ctx, p.Text)
	default:
		return nil, errInvalidRequest("unknown chat mode: " + p.Mode)
	}
	if err != nil {
		return nil, err
	}
	return messages.NewReplyMessage(id, p.Mode, text, sources), nil
}

type errInvalidRequest string

func (e errInvalidRequest) Error() string { return string(e) }

// async runs fn off the read loop and queues its reply or an error.
func (s *Server) async(c *Client, id string, timeout time.Duration, fn func(context.Context) (*messages.ServerMessage, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		reply, err := fn(ctx)
		if err != nil {
			code := messages.ErrCodeGeminiError
			var bad errInvalidRequest
			if errors.As(err, &bad) || errors.Is(err, gemini.ErrInvalidMediaOption) {
				code = messages.ErrCodeInvalidMessage
			}
			c.log.Warn().Err(err).Str("request", id).Msg("❌ Assistant request failed")
			c.queueMessage(messages.NewErrorMessage(id, code, err.Error()))
			return
		}
		c.queueMessage(reply)
	}()
}

func decodePayload(c *Client, msg *messages.ClientMessage, dst any) bool {
	if len(msg.Payload) == 0 {
		c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeInvalidMessage, msg.Type+" requires a payload"))
		return false
	}
	if err := sonic.Unmarshal(msg.Payload, dst); err != nil {
		c.queueMessage(messages.NewErrorMessage(msg.ID, messages.ErrCodeInvalidMessage, "invalid "+msg.Type+" payload"))
		return false
	}
	return true
}
