package gemini

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"google.golang.org/genai"
)

var (
	ImageAspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}
	ImageSizes        = []string{"1K", "2K", "4K"}
	VideoAspectRatios = []string{"16:9", "9:16"}
)

var ErrInvalidMediaOption = errors.New("invalid media option")

// Image is generated image data.
type Image struct {
	MIMEType string
	Data     []byte
}

// GenerateImage renders prompt at the given aspect ratio and size.
func (a *Assistant) GenerateImage(ctx context.Context, prompt, aspectRatio, size string) (*Image, error) {
	if !slices.Contains(ImageAspectRatios, aspectRatio) {
		return nil, fmt.Errorf("%w: aspect ratio %q", ErrInvalidMediaOption, aspectRatio)
	}
	if !slices.Contains(ImageSizes, size) {
		return nil, fmt.Errorf("%w: image size %q", ErrInvalidMediaOption, size)
	}

	resp, err := a.models.GenerateContent(ctx, ImageModel, userContent(genai.NewPartFromText(prompt)), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: aspectRatio, ImageSize: size},
	})
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	blob := firstInlineData(resp)
	if blob == nil {
		return nil, fmt.Errorf("image: %w", ErrNoOutput)
	}
	mime := blob.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	a.log.Info().Str("aspect", aspectRatio).Str("size", size).Int("bytes", len(blob.Data)).Msg("🖼️ Image generated")
	return &Image{MIMEType: mime, Data: blob.Data}, nil
}

// Video is a generated clip.
type Video struct {
	MIMEType string
	Data     []byte
}

// GenerateVideo starts a 720p render, waits for the long-running operation
// and downloads the result. image, if non-nil, is a PNG start frame.
func (a *Assistant) GenerateVideo(ctx context.Context, prompt string, image []byte, aspectRatio string) (*Video, error) {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	if !slices.Contains(VideoAspectRatios, aspectRatio) {
		return nil, fmt.Errorf("%w: video aspect ratio %q", ErrInvalidMediaOption, aspectRatio)
	}

	var start *genai.Image
	if len(image) > 0 {
		start = &genai.Image{ImageBytes: image, MIMEType: "image/png"}
	}
	op, err := a.videos.GenerateVideos(ctx, VideoModel, prompt, start, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	a.log.Info().Str("operation", op.Name).Msg("🎬 Video generation started")

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = a.operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, fmt.Errorf("video poll failed: %w", err)
		}
	}
	if op.Error != nil {
		return nil, fmt.Errorf("video generation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("video: %w", ErrNoOutput)
	}

	generated := op.Response.GeneratedVideos[0]
	v := generated.Video
	mime := v.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	if len(v.VideoBytes) > 0 {
		return &Video{MIMEType: mime, Data: v.VideoBytes}, nil
	}
	if v.URI == "" {
		return nil, fmt.Errorf("video: %w", ErrNoOutput)
	}
	data, err := a.files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(generated), nil)
	if err != nil {
		return nil, fmt.Errorf("video download: %w", err)
	}
	a.log.Info().Int("bytes", len(data)).Msg("🎬 Video downloaded")
	return &Video{MIMEType: mime, Data: data}, nil
}

