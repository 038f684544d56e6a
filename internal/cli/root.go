// Package cli implements the peaksandprofiles command line: config, make
// and show.
package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"peaksandprofiles/internal/config"
)

// NewRootCommand builds the command tree. Command errors carry their exit
// code (see ExitCode).
func NewRootCommand() *cobra.Command {
	var o Options
	root := &cobra.Command{
		Use:   "peaksandprofiles",
		Short: "Peak calling and read profiles for ChIP-seq BAM files",
		Long: `peaksandprofiles filters and deduplicates ChIP-seq BAM files, then counts
reads over genes, computes gene body and TSS profiles and calls broad and
narrow peaks against the matching Input controls.

BAM files are taken from the working directory and must be named
<group>-<ChIP|Input>-<condition>-<replicate>.bam.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.WorkDir, "workdir", "w", ".", "pipeline directory")
	root.PersistentFlags().StringVarP(&o.ConfigFile, "config", "c", "", "configuration file (default <workdir>/"+config.FileName+")")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitInvalidInvocation, Err: err}
	})

	root.AddCommand(newConfigCommand(&o), newMakeCommand(&o), newShowCommand(&o))
	return root
}

func newConfigCommand(o *Options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write a configuration file with every option at its default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := o.ConfigFile
			if path == "" {
				path = filepath.Join(o.WorkDir, config.FileName)
			}
			if err := config.WriteDefaults(path, force); err != nil {
				return &ExitError{Code: ExitConfigError, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newMakeCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "make [targets...]",
		Short: "Run every stale task instance needed by the targets (default full)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := *o
			opts.Targets = args
			res, err := Make(cmd.Context(), opts)
			if res.Graph != nil {
				failed := make([]string, 0, len(res.Graph.Failures))
				for key := range res.Graph.Failures {
					failed = append(failed, key)
				}
				sort.Strings(failed)
				for _, key := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", key, res.Graph.Failures[key])
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&o.Jobs, "jobs", "j", 0, "number of instances run at once (default run.jobs)")
	cmd.Flags().StringVar(&o.Completion, "completion", "", "completion strategy: timestamp or manifest (default run.completion)")
	cmd.Flags().StringVar(&o.TracePath, "trace", "", "write the execution trace to this file")
	return cmd
}

func newShowCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [targets...]",
		Short: "List the task instances and whether make would run them",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := *o
			opts.Targets = args
			statuses, err := Show(opts)
			if err != nil {
				return err
			}
			return classify(WriteStatus(cmd.OutOrStdout(), statuses))
		},
	}
	cmd.Flags().StringVar(&o.Completion, "completion", "", "completion strategy: timestamp or manifest (default run.completion)")
	return cmd
}

// Run executes the command line args (without the program name) and
// returns the process exit code. Errors are printed to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "peaksandprofiles: %v\n", err)
	}
	return ExitCode(err)
}
