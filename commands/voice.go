package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/session"
	"github.com/spf13/cobra"
)

var (
	voiceFile string
	voiceMute bool
	voiceSay  string
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Run one voice session in the terminal",
	Long: `Run one voice session against a local handset and print the
transcript and every voice command Gemini issues.

Examples:
  # Talk through the default microphone
  omnistream voice

  # Replay a 16 kHz mono WAV as the microphone
  omnistream voice -f ask_for_nfc.wav --mute

  # Open with a typed request instead of speech
  omnistream voice --say "switch to infrared"`,
	RunE: runVoice,
}

func init() {
	voiceCmd.Flags().StringVarP(&voiceFile, "file", "f", "", "16-bit mono WAV or raw PCM to use as microphone input")
	voiceCmd.Flags().BoolVar(&voiceMute, "mute", false, "with --file, discard the spoken reply")
	voiceCmd.Flags().StringVar(&voiceSay, "say", "", "typed turn to send once the link is open")
}

func runVoice(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	var devices audio.Context
	if voiceFile != "" {
		fc, err := audio.NewFileContext(voiceFile, cfg.CaptureDeviceRate)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", voiceFile, err)
		}
		if !voiceMute {
			if speakers, err := audio.NewContext(); err == nil {
				fc.Playback = speakers
			} else {
				log.Warn().Err(err).Msg("⚠️ No audio backend, reply will not be played")
			}
		}
		devices = fc
	} else {
		if devices, err = audio.NewContext(); err != nil {
			return err
		}
	}
	defer devices.Close()

	out := newPrinter(os.Stdout)
	dev := device.New(log.With().Str("component", "device").Logger())
	defer dev.Subscribe(out.deviceEvent)()

	opts := voiceTemplate(cfg, client, dev, devices, log)
	opts.OnStateChange = out.voiceState
	opts.OnTranscript = out.transcript

	s, err := session.New(opts)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	if voiceSay != "" {
		if err := s.SendText(voiceSay); err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to send typed turn")
		}
	}

	select {
	case <-ctx.Done():
	case <-s.Done():
	}
	s.Stop()

	snap := dev.Snapshot()
	out.line("%s module=%s scanning=%t ghost=%t", out.st.Label.Render("[DEVICE]"), snap.Module, snap.Scanning, snap.GhostMode)
	if s.State() == session.StateError {
		return errors.New("voice session ended with an error")
	}
	return nil
}
