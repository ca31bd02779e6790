package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"deepresearch/internal/research/client"
	"deepresearch/internal/server/ports"
)

func (o *rootOptions) newClient() (*client.Client, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(o.serverURL(cfg)), nil
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		mode     string
		interval time.Duration
		detach   bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Create a research task and follow it until it finishes",
		Example: `  deepresearch run "impact of heat pumps on grid load"
  deepresearch run --mode heavy --output json "solid-state battery outlook"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			goal := strings.Join(args, " ")
			taskID, err := api.CreateTask(ctx, goal, ports.ResearchMode(mode))
			if err != nil {
				return err
			}
			if detach {
				fmt.Fprintln(out, taskID)
				return nil
			}

			var progress func(*ports.ResearchTask)
			if output == "text" {
				fmt.Fprintf(out, "%s %s\n", gray("task"), taskID)
				progress = newProgressPrinter(out).Update
			}
			task, err := client.NewPoller(api, interval).Poll(ctx, taskID, progress)
			if err != nil {
				return err
			}
			if err := writeTask(out, task, output); err != nil {
				return err
			}
			if task.Status == ports.TaskStatusError {
				return fmt.Errorf("research task %s failed: %s", task.ID, task.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(ports.ResearchModeQuick), "research mode: quick or heavy")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "print the task id and return without waiting")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the current snapshot of a research task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.newClient()
			if err != nil {
				return err
			}
			task, err := api.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeTask(cmd.OutOrStdout(), task, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List research tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := opts.newClient()
			if err != nil {
				return err
			}
			summaries, err := api.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch output {
			case "text":
				renderSummaries(out, summaries)
				return nil
			default:
				return encode(out, summaries, output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running research task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.newClient()
			if err != nil {
				return err
			}
			taskID := args[0]
			if remove {
				if err := api.DeleteTask(cmd.Context(), taskID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", taskID)
				return nil
			}
			if err := api.CancelTask(cmd.Context(), taskID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cancellation requested\n", taskID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the task instead, stopping it first if running")
	return cmd
}

func writeTask(out io.Writer, task *ports.ResearchTask, format string) error {
	if format == "text" {
		renderReport(out, task)
		return nil
	}
	return encode(out, task, format)
}

// encode writes v as json or yaml. YAML goes through JSON first so field
// names match the wire format.
func encode(out io.Writer, v any, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(generic)
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}
}
