package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	authEmail    string
	authPassword string
)

// loginCmd signs in and establishes the backend session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Authenticates against the identity provider and performs the backend
login exchange. The session is persisted so later commands stay signed in.`,
	RunE: runLogin,
}

// registerCmd creates a new account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE:  runRegister,
}

// logoutCmd clears the local session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !app.store.IsAuthenticated() {
			fmt.Println("Not signed in.")
			return nil
		}
		if err := app.store.SignOut(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

// whoamiCmd prints the current identity
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		user := app.provider.CurrentUser()
		if user == nil {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("%s (%s)\n", user.Email, user.UID)
		return nil
	},
}

// resetPasswordCmd asks the backend to send a password reset email
var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password [email]",
	Short: "Request a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := app.auth.RequestPasswordReset(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if msg == "" {
			msg = "Password reset email sent."
		}
		fmt.Println(msg)
		return nil
	},
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, password, err := credentials()
	if err != nil {
		return err
	}
	user, err := app.auth.Login(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Signed in as %s\n", user.Email)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	email, password, err := credentials()
	if err != nil {
		return err
	}
	user, err := app.auth.Register(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Printf("Account created for %s\n", user.Email)
	return nil
}

// credentials resolves the email and password from flags, prompting for
// anything missing. The password prompt never echoes.
func credentials() (string, string, error) {
	email := strings.TrimSpace(authEmail)
	if email == "" {
		fmt.Print("Email: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	password := authPassword
	if password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}
	if password == "" {
		return "", "", fmt.Errorf("password is required")
	}
	return email, password, nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&authEmail, "email", "e", "", "Account email")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "Account password (prompted when omitted)")
	}
}
