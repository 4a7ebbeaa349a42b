package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"stageline/internal/app"
	"stageline/internal/attention"
	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	c.AddCommand(clientCreateCmd())
	c.AddCommand(clientListCmd())
	return c
}

func clientCreateCmd() *cobra.Command {
	var opts engine.ClientCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClient(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "client name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&opts.Company, "company", "", "company")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clients, err := e.ListClients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(clients)
				}
				tw := newTable(table.Row{"ID", "Name", "Company", "Email"})
				for _, c := range clients {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Company, c.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
		Long:  "API keys attribute HTTP requests to an actor. The plaintext key is shown once, at creation.",
	}
	c.AddCommand(apiKeyCreateCmd())
	c.AddCommand(apiKeyListCmd())
	c.AddCommand(apiKeyDeleteCmd())
	return c
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": plain})
				}
				fmt.Printf("api key %s for %s\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key acts as (default: --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, ago(k.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func attentionCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "attention",
		Short: "Show items that have sat too long in their stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.AttentionReport(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable(table.Row{"ID", "Name", "Stage", "Days", "Level"}, 4)
				for _, st := range rep.Items {
					if !all && st.Level == attention.LevelNone {
						continue
					}
					tw.AppendRow(table.Row{st.Item.ID, st.Item.Name, st.Item.Stage, st.DaysInStage, st.Level})
				}
				tw.Render()
				fmt.Printf("%d warning, %d danger (thresholds %d/%d days)\n", rep.Warning, rep.Danger, rep.Thresholds.Warning, rep.Thresholds.Danger)
				counts := make([]string, 0, len(rep.StageCounts))
				for _, stage := range domain.Stages() {
					if n := rep.StageCounts[stage]; n > 0 {
						counts = append(counts, fmt.Sprintf("%s=%d", stage, n))
					}
				}
				if len(counts) > 0 {
					fmt.Println(strings.Join(counts, " "))
				}
				if len(rep.OnHold) > 0 {
					hw := newTable(table.Row{"On hold", "Name", "Days", "Reason"}, 3)
					for _, h := range rep.OnHold {
						hw.AppendRow(table.Row{h.Item.ID, h.Item.Name, h.HoldDays, h.Reason})
					}
					hw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include items below the warning threshold")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "Every change to items, stages, holds, timers and clients is recorded here.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	var action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Action = domain.Action(action)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evs, err := e.Activity(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := newTable(table.Row{"#", "When", "Action", "Actor", "Description"}, 1)
				for _, ev := range evs {
					tw.AppendRow(table.Row{ev.ID, ago(ev.OccurredAt), ev.Action, ev.ActorID, ev.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ItemID, "item", "", "item filter")
	cmd.Flags().StringVar(&action, "action", "", "action filter, e.g. stage_changed")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives next to the workspace in stageline.yml or stageline.toml: attention thresholds, logging and server settings.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var format string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			var path, body string
			switch format {
			case "yaml", "yml":
				path = config.Path(workspace)
				body = config.GenerateDefault()
			case "toml":
				path = filepath.Join(workspace, "stageline.toml")
				s, err := config.Default().TOML()
				if err != nil {
					return err
				}
				body = s
			default:
				return fmt.Errorf("--format: unsupported value %q", format)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "yaml or toml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				cfg := *ws.Config
				if cfg.Server.JWTSecret != "" {
					cfg.Server.JWTSecret = "********"
				}
				if viper.GetBool("json") || format == "json" {
					return printJSON(cfg)
				}
				switch format {
				case "toml":
					s, err := cfg.TOML()
					if err != nil {
						return err
					}
					fmt.Print(s)
				case "yaml", "yml":
					b, err := yaml.Marshal(cfg)
					if err != nil {
						return err
					}
					fmt.Print(string(b))
				default:
					return fmt.Errorf("--format: unsupported value %q", format)
				}
				if ws.ConfigPath == "" {
					fmt.Fprintln(os.Stderr, "(built-in defaults; no config file found)")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "yaml, toml or json")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			var err error
			if path != "" {
				_, err = config.FromFile(path)
			} else {
				_, path, err = config.Load(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "path": path, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}
