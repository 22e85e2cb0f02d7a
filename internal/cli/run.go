package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/gateway"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [goal]",
		Short: "Run goals interactively in a local browser",
		Long: `Run a single goal given as arguments, or read goals one per line.
Questions the agent asks are answered at the prompt. Ctrl+C stops the
running goal; "exit" or Ctrl+D quits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to init terminal input: %w", err)
			}
			defer rl.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, rl.Stderr())
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			r := &repl{orch: a.orch, rl: rl, out: rl.Stdout(), id: "cli:" + uuid.NewString(), log: a.zap}
			stop := r.cancelOnInterrupt()
			defer stop()

			if len(args) > 0 {
				return r.goal(ctx, strings.Join(args, " "))
			}
			fmt.Fprintln(r.out, "What should I do? (type 'exit' or press Ctrl+D to quit)")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				switch strings.ToLower(line) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if err := r.goal(ctx, line); err != nil {
					return err
				}
			}
		},
	}
}

// repl drives one CLI session through the orchestrator.
type repl struct {
	orch *agent.Orchestrator
	rl   *readline.Instance
	out  io.Writer
	id   string
	log  *zap.Logger
}

// goal runs text to a resting state, asking at the prompt while the session
// waits for answers.
func (r *repl) goal(ctx context.Context, text string) error {
	v, err := r.orch.Start(ctx, r.id, text)
	for {
		var ferr *agent.FailureError
		if err != nil && !errors.As(err, &ferr) {
			return err
		}
		if v.Status != agent.StatusAwaitingUser {
			fmt.Fprintln(r.out, gateway.FormatView(v))
			return nil
		}

		answer, rerr := r.ask(v.Question)
		if rerr != nil {
			if cerr := r.orch.Cancel(r.id); cerr != nil {
				r.log.Warn("cancel failed", zap.Error(cerr))
			}
			fmt.Fprintln(r.out, "Cancelled.")
			return nil
		}
		v, err = r.orch.Resume(ctx, r.id, answer)
	}
}

func (r *repl) ask(question string) (string, error) {
	prev := r.rl.Config.Prompt
	defer r.rl.SetPrompt(prev)
	r.rl.SetPrompt(question + " ")
	for {
		line, err := r.rl.Readline()
		if err != nil {
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
}

// cancelOnInterrupt cancels the running goal on SIGINT instead of exiting.
// Interrupts at the prompt are handled by readline.
func (r *repl) cancelOnInterrupt() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				if err := r.orch.Cancel(r.id); err != nil && !errors.Is(err, agent.ErrUnknownSession) {
					r.log.Warn("cancel failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
