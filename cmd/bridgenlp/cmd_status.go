package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bridgenlp/internal/platform"
)

// statusCmd shows a summary of the signed-in account
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and account summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("Server: %s\n", app.cfg.APIBaseURL)

	user := app.provider.CurrentUser()
	if user == nil {
		fmt.Println("Session: signed out")
		return nil
	}
	fmt.Printf("Session: signed in as %s\n", user.Email)

	// The collections are independent; load them concurrently.
	var mine, public []platform.Function
	var executions int
	var profile platform.Profile

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		var err error
		mine, err = app.library.Load(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		public, err = app.public.Load(ctx)
		return err
	})
	g.Go(func() error {
		records, err := app.history.Load(ctx)
		executions = len(records)
		return err
	})
	g.Go(func() error {
		var err error
		profile, err = app.profile.Get(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if profile.FirstName != "" || profile.LastName != "" {
		fmt.Printf("Name: %s %s\n", profile.FirstName, profile.LastName)
	}
	personal := len(platform.FilterByVisibility(mine, platform.TabPersonal))
	fmt.Printf("Library: %d functions (%d private, %d public)\n", len(mine), personal, len(mine)-personal)
	fmt.Printf("Store: %d public functions\n", len(public))
	fmt.Printf("History: %d executions\n", executions)
	return nil
}
