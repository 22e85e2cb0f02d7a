package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/plan"
)

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <goal>",
		Short: "Print the step plan for a goal without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newCore(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.zap.Sync()

			planner := agent.NewPlanner(a.gen, a.prompts, a.zap)
			steps, source, err := planner.Plan(ctx, "plan", strings.Join(args, " "))
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), source, steps)
			return nil
		},
	}
}

func printPlan(w io.Writer, source string, steps plan.StepPlan) {
	fmt.Fprintf(w, "%d steps (%s)\n", len(steps), source)
	fmt.Fprint(w, plan.Format(steps))
}
