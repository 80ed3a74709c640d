// File: cmd/build.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/observability"
	"github.com/xkilldash9x/loom/internal/service"
)

// newBuildCmd creates and configures the `build` command: a single
// orchestrator run driven from the terminal instead of the HTTP relay.
func newBuildCmd() *cobra.Command {
	var (
		threadID  string
		projectID string
	)

	buildCmd := &cobra.Command{
		Use:   "build [message...]",
		Short: "Runs one build turn and streams the output to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}
			if threadID == "" {
				threadID = uuid.New().String()
			}

			components, err := service.NewComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}
			defer components.Shutdown()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "thread: %s\n", threadID)

			sink := &stdoutSink{out: out}
			if err := components.Agent.Run(ctx, schemas.RunInput{
				ThreadID:  threadID,
				ProjectID: projectID,
				OwnerID:   "cli",
				Message:   strings.Join(args, " "),
			}, sink); err != nil {
				return fmt.Errorf("build run failed: %w", err)
			}
			sink.finish()
			return nil
		},
	}

	buildCmd.Flags().StringVar(&threadID, "thread", "", "thread id to resume (a new one is generated when omitted)")
	buildCmd.Flags().StringVar(&projectID, "project", "", "project id the generated files belong to")

	return buildCmd
}

// stdoutSink renders the run's event stream for a terminal: fragments as they
// arrive, each decoded directive on its own line.
type stdoutSink struct {
	out       io.Writer
	midStream bool
}

func (s *stdoutSink) Fragment(text string) {
	fmt.Fprint(s.out, text)
	s.midStream = true
}

func (s *stdoutSink) Directive(payload []byte) {
	if s.midStream {
		fmt.Fprintln(s.out)
		s.midStream = false
	}
	fmt.Fprintf(s.out, ">> %s\n", payload)
}

func (s *stdoutSink) finish() {
	if s.midStream {
		fmt.Fprintln(s.out)
		s.midStream = false
	}
}
