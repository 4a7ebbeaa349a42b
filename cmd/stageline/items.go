package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

func itemCmd() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Manage work items",
		Long:  "Work items live in exactly one pipeline stage at a time. New items start at the end of BACKLOG.",
	}
	item.AddCommand(itemCreateCmd())
	item.AddCommand(itemListCmd())
	item.AddCommand(itemShowCmd())
	item.AddCommand(itemUpdateCmd())
	item.AddCommand(itemDeleteCmd())
	item.AddCommand(itemMoveCmd())
	item.AddCommand(itemHoldCmd())
	item.AddCommand(itemResumeCmd())
	item.AddCommand(itemPriorityCmd())
	item.AddCommand(itemHistoryCmd())
	item.AddCommand(itemNoteCmd())
	return item
}

func itemCreateCmd() *cobra.Command {
	var opts engine.ItemCreateOptions
	var priority string
	var rate float64
	var estimate int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work item in BACKLOG",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			if priority != "" {
				p, err := engine.ParsePriority(priority)
				if err != nil {
					return err
				}
				opts.Priority = p
			}
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			if cmd.Flags().Changed("estimate") {
				opts.EstimatedHours = &estimate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.CreateItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "item id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "item name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM, HIGH or URGENT (default MEDIUM)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func itemListCmd() *cobra.Command {
	var f repo.ItemFilters
	var stage, onHold string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items in pipeline order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage != "" {
				st, err := engine.ParseStage(stage)
				if err != nil {
					return err
				}
				f.Stage = st
			}
			if onHold != "" {
				b, err := strconv.ParseBool(onHold)
				if err != nil {
					return fmt.Errorf("--on-hold: %w", err)
				}
				f.OnHold = &b
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListItems(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Stage", "Pos", "Priority", "Hold", "Hours", "Updated"}, 4, 7)
				for _, it := range items {
					hold := ""
					if it.IsOnHold {
						hold = "on hold"
					}
					tw.AppendRow(table.Row{it.ID, it.Name, it.Stage, it.StagePosition, it.Priority, hold, it.ActualHours, ago(it.UpdatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage filter")
	cmd.Flags().StringVar(&onHold, "on-hold", "", "hold filter (true or false)")
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "name or description contains")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum items")
	return cmd
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item with its attention level and time totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.ItemAttention(ctx, args[0])
				if err != nil {
					return err
				}
				stats, err := e.TimeStats(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"item":          st.Item,
						"days_in_stage": st.DaysInStage,
						"level":         st.Level,
						"stats":         stats,
					})
				}
				it := st.Item
				tw := newTable(table.Row{"Field", "Value"})
				tw.AppendRows([]table.Row{
					{"ID", it.ID},
					{"Name", it.Name},
					{"Stage", fmt.Sprintf("%s (position %d)", it.Stage, it.StagePosition)},
					{"Days in stage", fmt.Sprintf("%d (%s)", st.DaysInStage, st.Level)},
					{"Priority", it.Priority},
					{"Client", deref(it.ClientID)},
					{"On hold", holdSummary(it)},
					{"Total hold days", it.TotalHoldDays},
					{"Hourly rate", deref(it.HourlyRate)},
					{"Estimated hours", deref(it.EstimatedHours)},
					{"Actual hours", it.ActualHours},
					{"Logged minutes", stats.TotalMinutes},
					{"Billable amount", fmt.Sprintf("%.2f", stats.BillableAmount)},
					{"Created", ago(it.CreatedAt)},
					{"Updated", ago(it.UpdatedAt)},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func holdSummary(it domain.WorkItem) string {
	if !it.IsOnHold {
		return "no"
	}
	s := "yes"
	if it.HoldStartedAt != nil {
		s += ", since " + ago(*it.HoldStartedAt)
	}
	if it.HoldReason != nil {
		s += ": " + *it.HoldReason
	}
	return s
}

func itemUpdateCmd() *cobra.Command {
	var name, description, client string
	var rate float64
	var estimate int
	var clearRate, clearEstimate bool
	cmd := &cobra.Command{
		Use:   "update <item-id>",
		Short: "Edit ordinary item fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ItemUpdateOptions{
				ID:                  args[0],
				ClearHourlyRate:     clearRate,
				ClearEstimatedHours: clearEstimate,
				ActorID:             actorID(),
			}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("client") {
				opts.ClientID = &client
			}
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			if cmd.Flags().Changed("estimate") {
				opts.EstimatedHours = &estimate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.UpdateItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&client, "client", "", "client id (empty to unset)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "estimated hours")
	cmd.Flags().BoolVar(&clearRate, "clear-rate", false, "remove the hourly rate")
	cmd.Flags().BoolVar(&clearEstimate, "clear-estimate", false, "remove the estimate")
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete an item with its history and time entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteItem(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func itemMoveCmd() *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "move <item-id> <stage>",
		Short: "Move an item to a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := engine.ParseStage(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.MoveToStage(ctx, args[0], st, position, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "position within the target stage")
	return cmd
}

func itemHoldCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "hold <item-id>",
		Short: "Put an item on hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.SetHold(ctx, args[0], true, reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the item is blocked")
	return cmd
}

func itemResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <item-id>",
		Short: "Take an item off hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.SetHold(ctx, args[0], false, "", actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func itemPriorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority <item-id> <priority>",
		Short: "Change an item's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := engine.ParsePriority(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.SetPriority(ctx, args[0], p, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func itemHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <item-id>",
		Short: "Show an item's stage transitions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				hist, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(hist)
				}
				tw := newTable(table.Row{"When", "From", "To"})
				for _, h := range hist {
					from := "-"
					if h.FromStage != nil {
						from = string(*h.FromStage)
					}
					tw.AppendRow(table.Row{h.OccurredAt.Format("2006-01-02 15:04"), from, h.ToStage})
				}
				tw.Render()
				return nil
			})
		},
	}
}
