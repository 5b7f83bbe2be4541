package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astromechza/screen-inu-history/pkg/history"
	"github.com/astromechza/screen-inu-history/pkg/viz"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or open the local replica and print its path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.manager.Path()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

func newAddCommand(a *app) *cobra.Command {
	var item history.Item
	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Add or replace a history item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if item.Text == "" {
				item.Text = strings.Join(args, " ")
			}
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.Timestamp == 0 {
				item.Timestamp = time.Now().UnixMilli()
			}
			if err := a.manager.Add(item); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&item.ID, "id", "", "item id (default: random uuid)")
	cmd.Flags().StringVar(&item.Text, "text", "", "captured text (default: the arguments)")
	cmd.Flags().StringVar(&item.Lang, "lang", "eng", "language tag")
	cmd.Flags().Int64Var(&item.Timestamp, "timestamp", 0, "epoch milliseconds (default: now)")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete history items; unknown ids are ignored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := a.manager.Delete(id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List history items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.manager.List()
			if err != nil {
				return err
			}
			return writeItems(cmd.OutOrStdout(), a.format, items)
		},
	}
}

func writeItems(w io.Writer, format string, items []history.Item) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tLANG\tTEXT")
	for _, it := range items {
		ts := time.UnixMilli(it.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, ts, it.Lang, strings.ReplaceAll(it.Text, "\n", " "))
	}
	return tw.Flush()
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot>...",
		Short: "Merge snapshots exported by other replicas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := a.manager.ImportSnapshot(path); err != nil {
					return fmt.Errorf("failed to import %s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <output>",
		Short: "Write the current snapshot for another replica to import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager.ExportSnapshot(args[0])
		},
	}
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the heads and change log of the local replica",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.manager.Snapshot()
			if err != nil {
				return err
			}
			doc, err := automerge.Load(raw)
			if err != nil {
				return fmt.Errorf("failed to load doc: %w", err)
			}
			changes, err := doc.Changes()
			if err != nil {
				return fmt.Errorf("failed to generate changes: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "heads: %v\n", doc.Heads())
			for i, change := range changes {
				fmt.Fprintf(out, "%4d %s %s@%d %q deps=%v\n", i, change.Hash(), change.ActorID(), change.ActorSeq(), change.Message(), change.Dependencies())
			}
			return nil
		},
	}
}

func newGraphCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [output.svg]",
		Short: "Render the change graph of the local replica to SVG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.manager.Snapshot()
			if err != nil {
				return err
			}
			var out string
			if len(args) == 1 {
				out = args[0]
				err = viz.RenderSnapshotToSvg(raw, history.HistoryContainer, out)
			} else {
				out, err = viz.RenderToTemp(raw, history.HistoryContainer)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "file://"+out)
			return err
		},
	}
}
