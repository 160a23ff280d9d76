package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/bbsearch/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var dir string

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List, tag and compare saved search results",
	}
	snapshotCmd.PersistentFlags().StringVar(&dir, "dir", "", "Snapshot directory")
	_ = snapshotCmd.MarkPersistentFlagRequired("dir")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewStore(dir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTAG\tCREATED\tSTATES\tGENERATOR\tMAX STEPS\tHIGH SCORE")
			for _, s := range store.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%d\n",
					s.ID, s.Tag, s.CreatedAt.Format(time.RFC3339), s.States, s.Generator, s.MaxSteps, s.HighScore)
			}
			return tw.Flush()
		},
	}

	var asJSON bool
	diffCmd := &cobra.Command{
		Use:     "diff <old> <new>",
		Short:   "Compare two snapshots given by ID or tag",
		Example: `  bbsearch snapshot diff --dir snaps bound-100 bound-200`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewStore(dir)
			if err != nil {
				return err
			}
			old, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			cur, err := store.Resolve(args[1])
			if err != nil {
				return err
			}
			d := snapshot.Diff(old, cur)
			if asJSON {
				data, err := json.MarshalIndent(d, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), snapshot.FormatDiff(d))
			return err
		},
	}
	diffCmd.Flags().BoolVar(&asJSON, "json", false, "Print the diff as JSON")

	tagCmd := &cobra.Command{
		Use:   "tag <id> <tag>",
		Short: "Tag a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewStore(dir)
			if err != nil {
				return err
			}
			return store.Tag(args[0], args[1])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id-or-tag>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewStore(dir)
			if err != nil {
				return err
			}
			snap, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			return store.Delete(snap.ID)
		},
	}

	snapshotCmd.AddCommand(listCmd, diffCmd, tagCmd, deleteCmd)
	return snapshotCmd
}
