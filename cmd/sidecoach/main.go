package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hireflow/sidecoach/internal/bus"
	"github.com/hireflow/sidecoach/internal/capture"
	"github.com/hireflow/sidecoach/internal/config"
	"github.com/hireflow/sidecoach/internal/copilot"
	"github.com/hireflow/sidecoach/internal/daemon"
	"github.com/hireflow/sidecoach/internal/session"
)

func main() {
	// Session tokens and LLM keys commonly live in a local .env.
	_ = godotenv.Load()
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "sidecoach",
	Short: "Live meeting transcription and interview copilot",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		statusCmd(),
		transcriptCmd(),
		stopCmd(),
		versionCmd(),
		initCmd(),
		devicesCmd(),
		listenCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return daemon.New(manager, nil).Run()
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle listening on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdToggle)
			if err != nil {
				return fmt.Errorf("failed to toggle listening: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func transcriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript",
		Short: "Dump the live transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommandAll(bus.CmdTranscript)
			if err != nil {
				return fmt.Errorf("failed to get transcript: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get daemon protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Save(config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			src := capture.NewDefaultSource()
			devices, err := src.Devices(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range devices {
				kind := "microphone"
				if d.Monitor {
					kind = "monitor"
				}
				fmt.Printf("%-10s %-40s %s\n", kind, d.ID, d.Label)
			}
			return nil
		},
	}
}

func listenCmd() *cobra.Command {
	var (
		meeting bool
		device  string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run a listening session in the foreground",
		Long: `Run a capture + transcription session in the foreground with a live
transcript view. Captures system (meeting) audio with --meeting, otherwise a
microphone; without --device an interactive picker is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(meeting, device)
		},
	}

	cmd.Flags().BoolVar(&meeting, "meeting", false, "Capture system (meeting) audio instead of a microphone")
	cmd.Flags().StringVar(&device, "device", "", "Microphone device id to capture")

	return cmd
}

func runListen(meeting bool, device string) error {
	cfg := config.LoadOrDefault()

	if cfg.ResolveToken() == "" {
		return fmt.Errorf("no transcription token: set SIDECOACH_TOKEN or transcription.token in the config")
	}

	kind := capture.Microphone
	if meeting {
		kind = capture.Meeting
	} else if device == "" && cfg.Capture.Device == "" {
		picked, err := pickDevice()
		if err != nil {
			return err
		}
		device = picked
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, _, err := session.Open(ctx, cfg, kind, device)
	if err != nil {
		return describeCaptureError(err)
	}

	view := newLiveView(os.Stdout)
	sess.OnTranscriptUpdate(view.Render)

	if cfg.Copilot.Enabled {
		cp, err := copilot.New(copilot.Config{
			APIKey:            cfg.ResolveCopilotKey(),
			Model:             cfg.Copilot.Model,
			ContextUtterances: cfg.Copilot.ContextUtterances,
		})
		if err != nil {
			return err
		}
		cp.OnAnswer(view.RenderAnswer)
		sess.OnFinalUtterance(func(text string) {
			go cp.HandleFinal(ctx, text)
		})
	}

	go func() {
		for err := range sess.Errors() {
			view.RenderError(err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	fmt.Println("Listening... press Ctrl-C to stop.")
	<-sigCh

	log.Printf("listen: stopping session")
	return sess.StopAndRelease()
}

func pickDevice() (string, error) {
	src := capture.NewDefaultSource()
	devices, err := src.Devices(context.Background())
	if err != nil {
		return "", describeCaptureError(err)
	}

	var options []huh.Option[string]
	for _, d := range devices {
		if d.Monitor {
			continue
		}
		options = append(options, huh.NewOption(d.Label, d.ID))
	}
	if len(options) == 0 {
		return "", fmt.Errorf("no microphone devices found")
	}

	var picked string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a microphone").
				Options(options...).
				Value(&picked),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return picked, nil
}

// describeCaptureError turns the capture error taxonomy into actionable
// messages; anything else passes through unchanged.
func describeCaptureError(err error) error {
	switch {
	case errors.Is(err, capture.ErrUnsupportedEnvironment):
		return fmt.Errorf("%w\n\nThis host has no usable audio capture stack. Install PipeWire (pipewire, pipewire-tools, pipewire-pulse) and retry", err)
	case errors.Is(err, capture.ErrPermissionDenied):
		return fmt.Errorf("%w\n\nAudio device access was refused. Check your audio permissions and retry", err)
	case errors.Is(err, capture.ErrNoAudioTrack):
		return fmt.Errorf("%w\n\nThe meeting share carries no system audio, so nothing could be transcribed. Pick a source with audio (a monitor device) and retry", err)
	default:
		return err
	}
}
