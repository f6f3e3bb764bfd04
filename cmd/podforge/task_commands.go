package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"podforge/internal/api"
	"podforge/internal/language"
	"podforge/internal/pipeline"
	"podforge/internal/task"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Create a podcast task from a source article URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.createTask(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s created\n", view.TaskID)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List podcast tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range statusFilters {
				if _, ok := task.ParseStatus(status); !ok {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			views, err := client.listTasks(statusFilters)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.TaskListResponse{Tasks: views})
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(views))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "filter by status (pending, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func renderTaskTable(views []api.TaskView) string {
	rows := make([][]string, len(views))
	for i, view := range views {
		step := view.CurrentStep
		if view.TotalSteps > 0 {
			step = fmt.Sprintf("%s (%d/%d)", view.CurrentStep, view.CurrentStepIndex+1, view.TotalSteps)
		}
		rows[i] = []string{
			view.TaskID,
			truncate(view.Title, 40),
			view.Status,
			step,
			fmt.Sprintf("%d%%", view.StepProgress),
			view.UpdatedAt.Local().Format("2006-01-02 15:04"),
		}
	}
	return renderTable(
		[]string{"TASK", "TITLE", "STATUS", "STEP", "PROGRESS", "UPDATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.getTask(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.TaskResponse{Task: *view})
			}
			printTaskDetail(cmd, view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, view *api.TaskView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:     %s\n", view.TaskID)
	fmt.Fprintf(out, "URL:      %s\n", view.URL)
	if view.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", view.Title)
	}
	fmt.Fprintf(out, "Status:   %s\n", view.Status)
	if view.CurrentStep != "" {
		fmt.Fprintf(out, "Step:     %s (%d/%d, %d%%)\n", view.CurrentStep, view.CurrentStepIndex+1, view.TotalSteps, view.StepProgress)
	}
	if view.ProgressMessage != "" {
		fmt.Fprintf(out, "Progress: %s\n", view.ProgressMessage)
	}
	if view.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", view.ErrorMessage)
	}

	if len(view.Files) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderFilesTable(view.Files))
	}
}

func renderFilesTable(files task.Files) string {
	var rows [][]string
	for _, level := range pipeline.Levels {
		langs := files[level]
		if langs == nil {
			continue
		}
		codes := make([]string, 0, len(langs))
		for code := range langs {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			refs := langs[code]
			rows = append(rows, []string{
				level,
				language.DisplayName(code),
				refs.Audio,
				refs.Subtitle,
			})
		}
	}
	return renderTable(
		[]string{"LEVEL", "LANGUAGE", "AUDIO", "SUBTITLE"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Retry a failed task from its failed step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.retryTask(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s resubmitted (resuming at %s)\n", view.TaskID, view.CurrentStep)
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <task-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a task and purge its working directory",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			removed, err := client.removeTask(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s not found\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", args[0])
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:  %s\n", yesNo(status.Running))
			fmt.Fprintf(out, "PID:      %d\n", status.PID)
			fmt.Fprintf(out, "Database: %s\n", status.DBPath)
			fmt.Fprintf(out, "Lock:     %s\n", status.LockPath)
			if len(status.Tasks) > 0 {
				counts := make([]string, 0, len(status.Tasks))
				for _, status := range orderedStatuses(status.Tasks) {
					counts = append(counts, status)
				}
				fmt.Fprintf(out, "Tasks:    %s\n", strings.Join(counts, ", "))
			}
			return nil
		},
	}
}

func orderedStatuses(counts map[string]int) []string {
	parts := make([]string, 0, len(counts))
	for _, status := range task.AllStatuses() {
		if count, ok := counts[string(status)]; ok {
			parts = append(parts, fmt.Sprintf("%d %s", count, status))
		}
	}
	return parts
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
