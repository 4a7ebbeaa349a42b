package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/domain"
	"stageline/internal/engine"
)

func itemNoteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Item notes"}
	note.AddCommand(&cobra.Command{
		Use:   "add <item-id> <text>...",
		Short: "Attach a note to an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddNote(ctx, args[0], strings.Join(args[1:], " "), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	})
	note.AddCommand(&cobra.Command{
		Use:   "list <item-id>",
		Short: "List an item's notes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				notes, err := e.ListNotes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				tw := newTable(table.Row{"Added", "Note"})
				for _, n := range notes {
					tw.AppendRow(table.Row{ago(n.CreatedAt), n.Content})
				}
				tw.Render()
				return nil
			})
		},
	})
	return note
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(tagCreateCmd())
	tag.AddCommand(tagListCmd())
	tag.AddCommand(tagLinkCmd("add", "Tag an item", engine.Engine.TagItem))
	tag.AddCommand(tagLinkCmd("remove", "Remove a tag from an item", engine.Engine.UntagItem))
	return tag
}

func tagCreateCmd() *cobra.Command {
	var opts engine.TagCreateOptions
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTag(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Color, "color", engine.DefaultTagColor, "#rrggbb color")
	return cmd
}

func tagListCmd() *cobra.Command {
	var itemID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list := e.ListTags
				if itemID != "" {
					list = func(ctx context.Context) ([]domain.Tag, error) { return e.ItemTags(ctx, itemID) }
				}
				tags, err := list(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tags)
				}
				tw := newTable(table.Row{"ID", "Name", "Color", "Items"}, 3)
				for _, t := range tags {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Color, t.ItemCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "only tags carried by this item")
	return cmd
}

func tagLinkCmd(use, short string, apply func(engine.Engine, context.Context, string, string, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <item-id> <tag-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := apply(e, ctx, args[0], args[1], actorID()); err != nil {
					return err
				}
				fmt.Println("ok")
				return nil
			})
		},
	}
}
