package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/room4-2/omnistream/audio"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	ThinkingModel   = "gemini-3-pro-preview"
	SearchModel     = "gemini-3-flash-preview"
	MapsModel       = "gemini-2.5-flash"
	TranscribeModel = "gemini-3-flash-preview"
	SpeechModel     = "gemini-2.5-flash-preview-tts"
	ImageModel      = "gemini-3-pro-image-preview"
	VideoModel      = "veo-3.1-fast-generate-preview"

	thinkingBudget = 32768
	noThinkOutput  = "Thinking complete. No output."
)

// ErrNoOutput is returned when a generation call yields nothing usable.
var ErrNoOutput = errors.New("model returned no output")

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type videoGenerator interface {
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationPoller interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type fileDownloader interface {
	Download(ctx context.Context, uri genai.DownloadURI, config *genai.DownloadFileConfig) ([]byte, error)
}

// Source is a grounding citation.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// LatLng biases maps grounding toward a location.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Assistant runs the one-shot chat, speech and media calls.
type Assistant struct {
	models     contentGenerator
	videos     videoGenerator
	operations operationPoller
	files      fileDownloader

	pollInterval time.Duration
	log          zerolog.Logger
}

func NewAssistant(client *genai.Client, log zerolog.Logger) *Assistant {
	return &Assistant{
		models:       client.Models,
		videos:       client.Models,
		operations:   client.Operations,
		files:        client.Files,
		pollInterval: 10 * time.Second,
		log:          log,
	}
}

func userContent(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// Think answers with extended reasoning. moduleContext names what the user
// is looking at.
func (a *Assistant) Think(ctx context.Context, prompt, moduleContext string) (string, error) {
	resp, err := a.models.GenerateContent(ctx, ThinkingModel, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(
			"You are the OmniStream Neural Core. Thinking enabled. Deep analyze: "+moduleContext, genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](thinkingBudget)},
	})
	if err != nil {
		return "", fmt.Errorf("thinking request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return noThinkOutput, nil
	}
	return text, nil
}

// Chat is a plain single-turn exchange.
func (a *Assistant) Chat(ctx context.Context, prompt string) (string, error) {
	resp, err := a.models.GenerateContent(ctx, SearchModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	return resp.Text(), nil
}

// Search answers with Google Search grounding.
func (a *Assistant) Search(ctx context.Context, prompt string) (string, []Source, error) {
	resp, err := a.models.GenerateContent(ctx, SearchModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("search request failed: %w", err)
	}
	return resp.Text(), groundingSources(resp), nil
}

// Maps answers with Google Maps grounding, optionally near loc.
func (a *Assistant) Maps(ctx context.Context, prompt string, loc *LatLng) (string, []Source, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
	}
	if loc != nil {
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{Latitude: genai.Ptr(loc.Lat), Longitude: genai.Ptr(loc.Lng)},
			},
		}
	}
	resp, err := a.models.GenerateContent(ctx, MapsModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", nil, fmt.Errorf("maps request failed: %w", err)
	}
	return resp.Text(), groundingSources(resp), nil
}

// Transcribe returns the text of a WAV recording.
func (a *Assistant) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := a.models.GenerateContent(ctx, TranscribeModel, userContent(
		genai.NewPartFromText("Transcribe the following audio exactly."),
		genai.NewPartFromBytes(wav, "audio/wav"),
	), nil)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return resp.Text(), nil
}

// Speak synthesizes text into 24 kHz mono audio.
func (a *Assistant) Speak(ctx context.Context, text, voice string) (audio.Buffer, error) {
	if voice == "" {
		voice = "Zephyr"
	}
	resp, err := a.models.GenerateContent(ctx, SpeechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("speech request failed: %w", err)
	}
	data := firstInlineData(resp)
	if data == nil {
		return audio.Buffer{}, fmt.Errorf("speech: %w", ErrNoOutput)
	}
	samples, err := audio.DecodePCM16(data.Data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("speech: %w", err)
	}
	return audio.Buffer{SampleRate: audio.OutputSampleRate, Samples: samples}, nil
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}

// groundingSources collects web and maps citations from the first
// candidate, skipping chunks without a URI.
func groundingSources(resp *genai.GenerateContentResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil {
			continue
		}
		switch {
		case chunk.Web != nil && chunk.Web.URI != "":
			sources = append(sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		case chunk.Maps != nil && chunk.Maps.URI != "":
			sources = append(sources, Source{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		}
	}
	return sources
}
