package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	profileFirstName string
	profileLastName  string
)

// profileCmd groups the profile commands
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		p, err := app.profile.Get(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Name:  %s %s\n", p.FirstName, p.LastName)
		fmt.Printf("Email: %s\n", p.Email)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update your name",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.requireAuth(); err != nil {
			return err
		}
		if !cmd.Flags().Changed("first") && !cmd.Flags().Changed("last") {
			return fmt.Errorf("nothing to update; pass --first and/or --last")
		}

		// The backend replaces both fields, so fetch current values for
		// anything not being changed.
		current, err := app.profile.Get(cmd.Context())
		if err != nil {
			return err
		}
		first, last := current.FirstName, current.LastName
		if cmd.Flags().Changed("first") {
			first = profileFirstName
		}
		if cmd.Flags().Changed("last") {
			last = profileLastName
		}

		if err := app.profile.Save(cmd.Context(), first, last); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Println("Profile updated.")
		return nil
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&profileFirstName, "first", "", "First name")
	profileSetCmd.Flags().StringVar(&profileLastName, "last", "", "Last name")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}
