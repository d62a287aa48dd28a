package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/spf13/cobra"
)

var (
	askMode   string
	askModule string
	askLat    float64
	askLng    float64
	askSpeak  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask the assistant a one-off question",
	Long: `Ask the assistant a question outside the voice link.

Modes:
  standard  plain answer
  thinking  extended reasoning with the active module as context
  search    answer grounded on Google Search, with sources
  maps      answer grounded on Google Maps, near --lat/--lng

Examples:
  omnistream ask "what frequencies do garage remotes use"
  omnistream ask --mode thinking --module NFC "how do I clone a tag"
  omnistream ask --mode maps --lat 51.5 --lng -0.12 "electronics shops"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMode, "mode", "m", "standard", "standard, thinking, search or maps")
	askCmd.Flags().StringVar(&askModule, "module", string(device.SubGHz), "module context for thinking mode")
	askCmd.Flags().Float64Var(&askLat, "lat", 0, "latitude for maps mode")
	askCmd.Flags().Float64Var(&askLng, "lng", 0, "longitude for maps mode")
	askCmd.Flags().BoolVar(&askSpeak, "speak", false, "read the answer aloud")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	prompt := strings.Join(args, " ")

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	assistant := gemini.NewAssistant(client, log)

	var (
		text    string
		sources []gemini.Source
	)
	switch askMode {
	case "standard":
		text, err = assistant.Chat(ctx, prompt)
	case "thinking":
		if _, ok := device.ParseModule(askModule); !ok {
			return fmt.Errorf("%w: %q", device.ErrUnknownModule, askModule)
		}
		text, err = assistant.Think(ctx, prompt, askModule)
	case "search":
		text, sources, err = assistant.Search(ctx, prompt)
	case "maps":
		var loc *gemini.LatLng
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
			loc = &gemini.LatLng{Lat: askLat, Lng: askLng}
		}
		text, sources, err = assistant.Maps(ctx, prompt, loc)
	default:
		return fmt.Errorf("unknown mode %q", askMode)
	}
	if err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	out.answer(text, sources)

	if askSpeak {
		return speak(cmd, assistant, text, cfg.VoiceName)
	}
	return nil
}

// speak plays text through the default output and waits for it to finish.
func speak(cmd *cobra.Command, assistant *gemini.Assistant, text, voice string) error {
	ctx := cmd.Context()
	buf, err := assistant.Speak(ctx, text, voice)
	if err != nil {
		return err
	}
	devices, err := audio.NewContext()
	if err != nil {
		return err
	}
	defer devices.Close()

	output, err := devices.OpenOutput(buf.SampleRate)
	if err != nil {
		return err
	}
	defer output.Close()

	src := output.Schedule(buf, output.CurrentTime())
	for !src.Ended() {
		select {
		case <-ctx.Done():
			src.Stop()
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}
