package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bridgenlp/internal/api"
	"bridgenlp/internal/platform"
)

var storeSearch string

// storeCmd groups the public function store commands
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Browse the public function store",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List public functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		var funcs []platform.Function
		if _, err := app.public.Load(cmd.Context()); err != nil {
			cached, ok := app.public.Cached()
			if !errors.Is(err, api.ErrNetwork) || !ok {
				return err
			}
			fmt.Println("Backend unreachable; showing cached data.")
			funcs = cached
		} else {
			funcs = app.public.Functions()
		}
		printFunctions(platform.SearchFunctions(funcs, storeSearch))
		return nil
	},
}

var storeAddCmd = &cobra.Command{
	Use:   "add [function-id]",
	Short: "Copy a public function into your library",
	Long: `Copies a public function into your library as a private function you can
edit. The copy records which store function it came from.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		if _, err := app.public.Load(cmd.Context()); err != nil {
			return err
		}
		msg, err := app.public.AddToLibrary(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("add failed: %w", err)
		}
		if msg == "" {
			msg = "Added to your library."
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	storeListCmd.Flags().StringVarP(&storeSearch, "search", "s", "", "Filter by name or description")
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeAddCmd)
}
