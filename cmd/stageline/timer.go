package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

func timerCmd() *cobra.Command {
	timer := &cobra.Command{
		Use:   "timer",
		Short: "Track time on work items",
		Long:  "One timer runs at a time across the workspace. Starting a timer stops the one already running.",
	}
	timer.AddCommand(timerStartCmd())
	timer.AddCommand(timerStopCmd())
	timer.AddCommand(timerStatusCmd())
	timer.AddCommand(timerAddCmd())
	timer.AddCommand(timerListCmd())
	timer.AddCommand(timerEditCmd())
	timer.AddCommand(timerDeleteCmd())
	timer.AddCommand(timerStatsCmd())
	timer.AddCommand(timerReconcileCmd())
	return timer
}

func timerStartCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "start <item-id>",
		Short: "Start a timer on an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.StartTimer(ctx, args[0], description, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("timer %s started on %s\n", entry.ID, entry.ItemID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "what is being worked on")
	return cmd
}

func timerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [entry-id]",
		Short: "Stop a timer (the running one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var id string
				if len(args) == 1 {
					id = args[0]
				} else {
					running, err := e.GetRunningEntry(ctx)
					if err != nil {
						return err
					}
					if running == nil {
						return errors.New("no timer is running")
					}
					id = running.ID
				}
				entry, err := e.StopTimer(ctx, id, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("timer %s stopped after %d min\n", entry.ID, *entry.DurationMinutes)
				return nil
			})
		},
	}
}

func timerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.GetRunningEntry(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"running": entry != nil, "entry": entry})
				}
				if entry == nil {
					fmt.Println("no timer running")
					return nil
				}
				it, err := e.GetItem(ctx, entry.ItemID)
				if err != nil {
					return err
				}
				elapsed := time.Since(entry.StartedAt).Truncate(time.Minute)
				fmt.Printf("running on %q for %s (started %s)\n", it.Name, elapsed, ago(entry.StartedAt))
				return nil
			})
		},
	}
}

func timerAddCmd() *cobra.Command {
	var minutes int
	var description string
	var nonBillable bool
	cmd := &cobra.Command{
		Use:   "add <item-id>",
		Short: "Log completed time without a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			billable := !nonBillable
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.AddManualEntry(ctx, engine.ManualEntryOptions{
					ItemID:          args[0],
					DurationMinutes: minutes,
					Description:     description,
					Billable:        &billable,
					ActorID:         actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "duration in minutes")
	cmd.Flags().StringVarP(&description, "description", "d", "", "what the time was spent on")
	cmd.Flags().BoolVar(&nonBillable, "non-billable", false, "record as non-billable")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func timerListCmd() *cobra.Command {
	var f repo.EntryFilters
	var running bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List time entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("running") {
				f.Running = &running
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ListEntries(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"ID", "Item", "Started", "Minutes", "Billable", "Description"}, 4)
				for _, en := range entries {
					tw.AppendRow(table.Row{en.ID, en.ItemID, en.StartedAt.Format("2006-01-02 15:04"), entryMinutes(en), en.IsBillable, en.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ItemID, "item", "", "item filter")
	cmd.Flags().BoolVar(&running, "running", false, "only running (or, with =false, completed) entries")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum entries")
	return cmd
}

func entryMinutes(en domain.TimeEntry) string {
	if en.IsRunning || en.DurationMinutes == nil {
		return "running"
	}
	return fmt.Sprint(*en.DurationMinutes)
}

func timerEditCmd() *cobra.Command {
	var description string
	var billable bool
	cmd := &cobra.Command{
		Use:   "edit <entry-id>",
		Short: "Edit an entry's description or billable flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.EntryUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("billable") {
				opts.Billable = &billable
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.UpdateEntry(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().BoolVar(&billable, "billable", true, "billable flag")
	return cmd
}

func timerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteEntry(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func timerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <item-id>",
		Short: "Time totals and billable amount for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.TimeStats(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := newTable(table.Row{"Entries", "Minutes", "Billable min", "Amount", "Actual h", "Estimated h"}, 1, 2, 3, 4, 5, 6)
				tw.AppendRow(table.Row{s.EntriesCount, s.TotalMinutes, s.BillableMinutes, fmt.Sprintf("%.2f", s.BillableAmount), s.ActualHours, deref(s.EstimatedHours)})
				tw.Render()
				return nil
			})
		},
	}
}

func timerReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-derive actual hours for every item from its completed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ReconcileActualHours(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"changed": n})
				}
				fmt.Printf("%d item(s) corrected\n", n)
				return nil
			})
		},
	}
}
