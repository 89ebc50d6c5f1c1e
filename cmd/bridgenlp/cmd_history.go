package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bridgenlp/internal/api"
	"bridgenlp/internal/platform"
)

var historySearch string

// historyCmd groups the execution history commands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect execution history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		var records []platform.Execution
		if _, err := app.history.Load(cmd.Context()); err != nil {
			cached, ok := app.history.Cached()
			if !errors.Is(err, api.ErrNetwork) || !ok {
				return err
			}
			fmt.Println("Backend unreachable; showing cached data.")
			records = platform.SearchExecutions(cached, historySearch)
		} else {
			records = app.history.Filter(historySearch)
		}
		if len(records) == 0 {
			fmt.Println("No executions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFUNCTION\tSTATUS\tTIMESTAMP")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.FunctionName, r.Status, r.Timestamp)
		}
		w.Flush()
		return nil
	},
}

var historyRepeatCmd = &cobra.Command{
	Use:   "repeat [execution-id]",
	Short: "Re-run a past execution",
	Long: `Re-runs a past execution with its original parameters. The run happens
server-side against the function's current code and produces a new record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		if _, err := app.history.Load(cmd.Context()); err != nil {
			return err
		}
		result, err := app.history.Repeat(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("repeat failed: %w", err)
		}
		fmt.Println(result)
		return nil
	},
}

func init() {
	historyListCmd.Flags().StringVarP(&historySearch, "search", "s", "", "Filter by function name")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRepeatCmd)
}
