package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"planproc/internal/api"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and manage plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newPlanListCommand(ctx))
	cmd.AddCommand(newPlanShowCommand(ctx))
	cmd.AddCommand(newPlanInitCommand(ctx))
	cmd.AddCommand(newPlanFailCommand(ctx))
	return cmd
}

func newPlanListCommand(ctx *commandContext) *cobra.Command {
	var phases []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans, optionally filtered by phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			plans, err := client.Plans(cmd.Context(), phases...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.PlanListResponse{Plans: plans})
			}
			if len(plans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plans found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), planListTable(plans))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&phases, "phase", nil, "Filter by phase (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit plans as JSON")
	return cmd
}

func newPlanShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one plan's stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			plan, err := client.Plan(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.PlanResponse{Plan: plan})
			}
			printPlanDetail(cmd, plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the plan as JSON")
	return cmd
}

func printPlanDetail(cmd *cobra.Command, plan api.PlanDetail) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Plan %s (%s)\n", plan.PlanID, phaseLabel(plan.Phase))
	if plan.OrganizationID != "" || plan.ProjectID != "" {
		fmt.Fprintf(stdout, "Organization %s, project %s\n", plan.OrganizationID, plan.ProjectID)
	}
	if plan.LastError != nil {
		fmt.Fprintf(stdout, "Failed at %s: %s\n", plan.LastError.At, plan.LastError.Reason)
	}
	if plan.DeadlineAt != "" {
		fmt.Fprintf(stdout, "Deadline %s\n", plan.DeadlineAt)
	}

	fmt.Fprintln(stdout, stageTable(plan))
	if len(plan.ValidSheetIDs) > 0 {
		fmt.Fprintf(stdout, "Valid sheets: %s\n", strings.Join(plan.ValidSheetIDs, ", "))
	}
}

func newPlanInitCommand(ctx *commandContext) *cobra.Command {
	var planID string
	var organizationID string
	var projectID string
	var totalSheets int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Register a plan for processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if totalSheets < 0 {
				return errors.New("--sheets must be non-negative")
			}
			if strings.TrimSpace(planID) == "" {
				planID = uuid.NewString()
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			plan, err := client.InitializePlan(cmd.Context(), api.InitializePlanRequest{
				PlanID:         planID,
				OrganizationID: organizationID,
				ProjectID:      projectID,
				TotalSheets:    totalSheets,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.PlanResponse{Plan: plan})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s initialized with %d sheets (%s)\n",
				plan.PlanID, plan.TotalSheets, phaseLabel(plan.Phase))
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "id", "", "Plan id (generated when omitted)")
	cmd.Flags().StringVar(&organizationID, "org", "", "Organization id")
	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	cmd.Flags().IntVar(&totalSheets, "sheets", 0, "Total sheet count")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the plan as JSON")
	_ = cmd.MarkFlagRequired("sheets")
	return cmd
}

func newPlanFailCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail <plan-id>",
		Short: "Mark a plan as terminally failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return errors.New("--reason is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			plan, err := client.FailPlan(cmd.Context(), strings.TrimSpace(args[0]), reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s marked failed: %s\n", plan.PlanID, reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason")
	return cmd
}
