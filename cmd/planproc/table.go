package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"planproc/internal/api"
)

// stageOrder lists the processing stages in pipeline order for display.
var stageOrder = []string{
	"image_generation",
	"metadata_extraction",
	"callout_detection",
	"tile_generation",
}

func newPlanTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

// planListTable renders one row per plan with the sheet counts right-aligned.
func planListTable(plans []api.PlanSummary) string {
	tw := newPlanTable()
	tw.AppendHeader(table.Row{"Plan", "Phase", "Sheets", "Valid", "Error"})
	for _, summary := range plans {
		tw.AppendRow(table.Row{
			summary.PlanID,
			phaseLabel(summary.Phase),
			summary.TotalSheets,
			summary.ValidSheets,
			summary.ErrorReason,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}

// stageTable renders per-stage completion progress for one plan.
func stageTable(detail api.PlanDetail) string {
	tw := newPlanTable()
	tw.AppendHeader(table.Row{"Stage", "Progress"})
	for _, stage := range stageOrder {
		progress, ok := detail.Stages[stage]
		if !ok {
			continue
		}
		tw.AppendRow(table.Row{
			phaseLabel(stage),
			fmt.Sprintf("%d / %d", progress.Completed, progress.Threshold),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return tw.Render()
}
