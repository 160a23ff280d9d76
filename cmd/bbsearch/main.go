package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/bbsearch/internal/config"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/machine"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "bbsearch",
		Short:        "Exhaustive Busy Beaver search over small Turing machines",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	fullCmd := &cobra.Command{
		Use:   "full",
		Short: "Classify every machine with N states and print a report",
		Example: `  bbsearch full -n 2
  bbsearch full -n 3 --workers 8 --progress
  bbsearch full -n 4 --json --journal run.jsonl
  bbsearch full -n 2 --snapshot-dir snaps --tag bound-200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFull(cmd.Context(), configPath, cmd.Flags(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(fullCmd.Flags())

	var single singleOptions
	singleCmd := &cobra.Command{
		Use:   "single [machine]",
		Short: "Inspect one machine, given in 1RB1LB_1LA1LH notation, by index or by ID",
		Example: `  bbsearch single 1RB1LB_1LA1LH
  bbsearch single -n 2 --index 8046 --graph dot
  bbsearch single -n 2 --id 262278`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				single.text = args[0]
			}
			single.byID = cmd.Flags().Changed("id")
			return runSingle(cmd.Context(), single, cmd.OutOrStdout())
		},
	}
	singleCmd.Flags().IntVarP(&single.states, "states", "n", 0, "Number of states, used with --index or --id")
	singleCmd.Flags().Uint64Var(&single.index, "index", 0, "Enumeration index of the machine")
	singleCmd.Flags().Uint64Var(&single.id, "id", 0, "Packed machine ID, five bits per transition")
	singleCmd.MarkFlagsMutuallyExclusive("index", "id")
	singleCmd.Flags().Uint32Var(&single.maxSteps, "max-steps", 200, "Step bound")
	singleCmd.Flags().StringVar(&single.graph, "graph", "", "Also print the transition graph: dot, mermaid or json")
	singleCmd.Flags().StringVar(&single.journal, "journal", "", "Append the inspection to this JSON lines file")

	var generator string
	spaceCmd := &cobra.Command{
		Use:   "space",
		Short: "Print the size of the enumerated space for every state count",
		Example: `  bbsearch space
  bbsearch space --generator no-symmetries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := enumerate.ParseGenerator(generator)
			if err != nil {
				return err
			}
			return printSpace(cmd.OutOrStdout(), gen)
		},
	}
	spaceCmd.Flags().StringVarP(&generator, "generator", "g", "canonical", "Machine generator: canonical, all, no-symmetries or optimized")

	rootCmd.AddCommand(fullCmd, singleCmd, spaceCmd, newSnapshotCmd())
	return rootCmd
}

func printSpace(w io.Writer, gen enumerate.Generator) error {
	fmt.Fprintf(w, "%-7s %s\n", "states", "machines")
	for n := 1; n <= machine.MaxStates; n++ {
		size, err := enumerate.GeneratedSize(n, gen)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%-7d %d\n", n, size); err != nil {
			return err
		}
	}
	return nil
}
