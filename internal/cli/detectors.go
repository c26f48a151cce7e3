package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aiscout/internal/detectors"
)

var detectorsListQuiet bool

var detectorsCmd = &cobra.Command{
	Use:   "detectors",
	Short: "List available detectors",
	Long: `Inspect aiscout detectors.

Each detector collects one kind of AI evidence from a repository. All detectors
run by default; select a subset with "aiscout scan --detectors".

Examples:
  aiscout detectors list
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var detectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available detectors",
	Long: `List all detectors registered in this build, sorted by ID.

Output:
  A vertical list of detectors:
    ----------------------------------------
    DETECTOR: {ID}
    ----------------------------------------
    {TITLE}
    {DESCRIPTION}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range detectors.List() {
			if detectorsListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), c.ID())
			} else {
				printDetector(cmd.OutOrStdout(), c)
			}
		}
		return nil
	},
}

var detectorsShowCmd = &cobra.Command{
	Use:   "show [detector-id]",
	Short: "Show details of a specific detector",
	Long: `Show details of a detector by its ID, including its options.

Examples:
  aiscout detectors show notebook-imports
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := detectors.Resolve(args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("detector not found: %s", args[0])
		}
		printDetector(cmd.OutOrStdout(), list[0])
		return nil
	},
}

func printDetector(w io.Writer, c detectors.Collector) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "DETECTOR: %s\n", c.ID())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, c.Title())
	fmt.Fprintln(w, c.Description())

	if cc, ok := c.(detectors.ConfigurableCollector); ok {
		if opts := cc.Options(); len(opts) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Options (set with --set option=value):")
			for _, opt := range opts {
				def := opt.Default
				if def == "" {
					def = "\"\""
				}
				fmt.Fprintf(w, "  %s\n", opt.Name)
				fmt.Fprintf(w, "    Description: %s\n", opt.Description)
				fmt.Fprintf(w, "    Default:     %s\n", def)
			}
		}
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(detectorsCmd)
	detectorsCmd.AddCommand(detectorsListCmd)
	detectorsListCmd.Flags().BoolVarP(&detectorsListQuiet, "quiet", "q", false, "Only print detector IDs")
	detectorsCmd.AddCommand(detectorsShowCmd)
}
