package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/prwatch/internal/scan"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one scan cycle and exit",
	Long: "Scans the configured repositories once, delivering any new verdicts " +
		"to the Telegram chat, then prints a cycle summary and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runCheck(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	},
}

func runCheck() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, formatReport(rep))
	return nil
}

// formatReport renders a cycle report for terminal output.
func formatReport(rep scan.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle %s\n", rep.CycleID)
	fmt.Fprintf(&b, "  duration:   %s\n", rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	fmt.Fprintf(&b, "  repos:      %d\n", rep.ReposScanned)
	fmt.Fprintf(&b, "  reviewed:   %d\n", rep.Reviewed)
	fmt.Fprintf(&b, "  up to date: %d\n", rep.Skipped)
	if len(rep.Failures) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "  failures:   %d\n", len(rep.Failures))
	for _, f := range rep.Failures {
		fmt.Fprintf(&b, "    - %s\n", f)
	}
	return b.String()
}
