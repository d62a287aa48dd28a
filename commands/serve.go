package commands

import (
	"context"
	"time"

	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/config"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/server"
	"github.com/room4-2/omnistream/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard WebSocket",
	Long: `Serve the device dashboard on /ws and a health check on /health.

The voice link uses the host's default microphone and speakers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

// voiceTemplate builds the per-session options shared by serve and voice.
func voiceTemplate(cfg *config.Config, client *genai.Client, dev *device.Device, devices audio.Context, log zerolog.Logger) session.Options {
	return session.Options{
		Setup: gemini.LiveSetup{
			Model:      cfg.LiveModel,
			VoiceName:  cfg.VoiceName,
			Transcribe: cfg.Transcribe,
		},
		Modules:           device.Names(),
		Callbacks:         dev.Callbacks(),
		Dial:              session.GeminiDialer(client, log),
		Devices:           devices,
		CaptureDeviceRate: cfg.CaptureDeviceRate,
		FrameSamples:      cfg.CaptureFrameSamples,
		OutputSampleRate:  cfg.OutputSampleRate,
		Logger:            log,
	}
}

func openDevices(log zerolog.Logger) audio.Context {
	devices, err := audio.NewContext()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ No audio backend, voice link disabled")
		return audio.Unavailable(err)
	}
	return devices
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	ctx := cmd.Context()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	devices := openDevices(log)
	defer devices.Close()

	dev := device.New(log.With().Str("component", "device").Logger())
	hub := server.NewHub()

	template := voiceTemplate(cfg, client, dev, devices, log)
	template.OnStateChange = hub.VoiceState
	template.OnTranscript = hub.Transcript

	manager := session.NewManager(cfg, template, log)
	go manager.StartCleanupRoutine(ctx)

	srv := server.NewServer(cfg, hub, dev, manager, gemini.NewAssistant(client, log), log)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		manager.Shutdown()
	}()

	if err := srv.Start(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
