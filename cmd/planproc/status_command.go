package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and plan pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			fmt.Fprintln(stdout, renderSectionHeader("Daemon", colorize))
			runningKind := statusError
			runningText := "stopped"
			if status.Running {
				runningKind = statusOK
				runningText = fmt.Sprintf("pid %d", status.PID)
			}
			fmt.Fprintln(stdout, renderStatusLine("Daemon", runningKind, runningText, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.PlanDBPath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
			fmt.Fprintln(stdout)

			fmt.Fprintln(stdout, renderSectionHeader("Plans by Phase", colorize))
			phases := make([]string, 0, len(status.PhaseCounts))
			for phase := range status.PhaseCounts {
				phases = append(phases, phase)
			}
			sort.Strings(phases)
			for _, phase := range phases {
				count := status.PhaseCounts[phase]
				fmt.Fprintln(stdout, renderStatusLine(phaseLabel(phase), phaseStatusKind(phase, count),
					fmt.Sprintf("%d", count), colorize))
			}
			if len(phases) == 0 {
				fmt.Fprintln(stdout, renderStatusLine("Plans", statusInfo, "none", colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}
