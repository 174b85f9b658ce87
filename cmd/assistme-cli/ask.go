package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/assistme"
	"github.com/ferro-labs/assistme/internal/stream"
)

// getenv is swapped out by tests.
var getenv = os.Getenv

// loadConfig reads the optional config file and overlays the environment.
func loadConfig(path string) (assistme.Config, error) {
	cfg := assistme.DefaultConfig()
	if path != "" {
		loaded, err := assistme.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}
	if err := assistme.ApplyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newAskCmd() *cobra.Command {
	var (
		configPath string
		model      string
		sessionID  string
		noStream   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the assistant a question from the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg.GitHub.Username = ""
			a, err := assistme.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			streaming := !noStream
			req := assistme.ChatRequest{
				Message:   strings.Join(args, " "),
				Model:     model,
				SessionID: sessionID,
				Stream:    &streaming,
			}

			if noStream {
				resp, err := a.Chat(ctx, req, "cli")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Answer)
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s · %s · %s · session %s]\n", resp.Source, resp.Model, resp.Runtime, resp.SessionID)
				return nil
			}

			var failure error
			var meta *stream.DoneMetadata
			sid, err := a.ChatStream(ctx, req, "cli", func(f stream.Frame) error {
				switch f.Type {
				case stream.TypeChunk:
					_, err := fmt.Fprint(out, f.Content)
					return err
				case stream.TypeDone:
					meta = f.Metadata
					_, err := fmt.Fprintln(out)
					return err
				case stream.TypeError:
					failure = errors.New(f.Code + ": " + f.Message)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if failure != nil {
				return failure
			}
			if meta != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s · %s · %d chunks · %dms · session %s]\n",
					meta.Source, meta.Model, meta.Chunks, meta.ElapsedMS, sid)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (JSON/YAML)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "print the whole answer at once")
	return cmd
}
