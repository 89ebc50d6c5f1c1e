package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bridgenlp/internal/api"
	"bridgenlp/internal/platform"
)

var (
	fnFilter      string
	fnSearch      string
	fnOutput      string
	fnName        string
	fnDescription string
	fnCode        string
	fnCodeFile    string
	fnLanguage    string
	fnPublic      bool
)

// fnCmd groups the function library commands
var fnCmd = &cobra.Command{
	Use:   "fn",
	Short: "Manage your function library",
}

var fnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the functions in your library",
	Long: `Lists your function library. A brand-new account whose library is empty
gets two Hello World starter functions created on first listing.`,
	RunE: runFnList,
}

var fnCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new function",
	RunE:  runFnCreate,
}

var fnEditCmd = &cobra.Command{
	Use:     "edit [function-id]",
	Aliases: []string{"update"},
	Short:   "Edit an existing function",
	Args:    cobra.ExactArgs(1),
	RunE:    runFnEdit,
}

var fnToggleCmd = &cobra.Command{
	Use:   "toggle [function-id]",
	Short: "Flip a function between private and public",
	Args:  cobra.ExactArgs(1),
	RunE:  runFnToggle,
}

var fnDeleteCmd = &cobra.Command{
	Use:   "delete [function-id]",
	Short: "Delete a function from your library",
	Args:  cobra.ExactArgs(1),
	RunE:  runFnDelete,
}

var fnShowCmd = &cobra.Command{
	Use:   "show [function-id]",
	Short: "Show a function's code",
	Args:  cobra.ExactArgs(1),
	RunE:  runFnShow,
}

var fnPullCmd = &cobra.Command{
	Use:   "pull [function-id]",
	Short: "Write a function's code to a local file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFnPull,
}

func runFnList(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}

	var funcs []platform.Function
	if err := app.loadLibrary(cmd.Context()); err != nil {
		cached, ok := app.library.Cached()
		if !errors.Is(err, api.ErrNetwork) || !ok {
			return err
		}
		fmt.Println("Backend unreachable; showing cached data.")
		funcs = cached
	} else {
		funcs = app.library.Functions()
	}

	funcs = platform.FilterByVisibility(funcs, platform.VisibilityTab(fnFilter))
	funcs = platform.SearchFunctions(funcs, fnSearch)
	printFunctions(funcs)
	return nil
}

func runFnCreate(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	code, err := resolveCode()
	if err != nil {
		return err
	}
	if fnName == "" || code == "" {
		return fmt.Errorf("--name and --code (or --code-file) are required")
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}

	created, err := app.library.Create(cmd.Context(), platform.Function{
		Name:        fnName,
		Description: fnDescription,
		Code:        code,
		Language:    fnLanguage,
		IsPublic:    fnPublic,
	})
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}
	fmt.Printf("Created %q (%s)\n", created.Name, created.ID)
	return nil
}

func runFnEdit(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}

	fn, err := findFunction(app.library.Functions(), args[0])
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("name") {
		fn.Name = fnName
	}
	if cmd.Flags().Changed("description") {
		fn.Description = fnDescription
	}
	if cmd.Flags().Changed("language") {
		fn.Language = fnLanguage
	}
	if cmd.Flags().Changed("code") || cmd.Flags().Changed("code-file") {
		code, err := resolveCode()
		if err != nil {
			return err
		}
		fn.Code = code
	}

	updated, err := app.library.Update(cmd.Context(), fn)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	fmt.Printf("Updated %q (%s)\n", updated.Name, updated.ID)
	return nil
}

func runFnToggle(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}

	public, err := app.library.ToggleVisibility(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("toggle failed: %w", err)
	}
	if public {
		fmt.Println("Function is now public.")
	} else {
		fmt.Println("Function is now private.")
	}
	return nil
}

func runFnDelete(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}
	if err := app.library.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Println("Deleted.")
	return nil
}

func runFnShow(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}
	fn, err := findFunction(app.library.Functions(), args[0])
	if err != nil {
		return err
	}
	visibility := "private"
	if fn.IsPublic {
		visibility = "public"
	}
	fmt.Printf("%s (%s, %s)\n", fn.Name, fn.Language, visibility)
	if fn.Description != "" {
		fmt.Println(fn.Description)
	}
	fmt.Println()
	fmt.Println(fn.Code)
	return nil
}

func runFnPull(cmd *cobra.Command, args []string) error {
	if err := app.requireAuth(); err != nil {
		return err
	}
	if err := app.loadLibrary(cmd.Context()); err != nil {
		return err
	}
	fn, err := findFunction(app.library.Functions(), args[0])
	if err != nil {
		return err
	}

	out := fnOutput
	if out == "" {
		out = safeFilename(fn.Name) + extensionFor(fn.Language)
	}
	if err := os.WriteFile(out, []byte(fn.Code), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Wrote %s to %s\n", fn.Name, out)
	return nil
}

func safeFilename(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.Trim(mapped, "_")
}

func extensionFor(language string) string {
	switch strings.ToLower(language) {
	case "python", "":
		return ".py"
	case "javascript":
		return ".js"
	default:
		return ".txt"
	}
}

// findFunction resolves an id, accepting a unique name as a convenience.
func findFunction(funcs []platform.Function, key string) (platform.Function, error) {
	for _, f := range funcs {
		if f.ID == key {
			return f, nil
		}
	}
	var matches []platform.Function
	for _, f := range funcs {
		if strings.EqualFold(f.Name, key) {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return platform.Function{}, fmt.Errorf("no function %q in your library", key)
	default:
		return platform.Function{}, fmt.Errorf("%d functions named %q; use the id", len(matches), key)
	}
}

func resolveCode() (string, error) {
	if fnCodeFile != "" {
		data, err := os.ReadFile(fnCodeFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", fnCodeFile, err)
		}
		return string(data), nil
	}
	return fnCode, nil
}

func printFunctions(funcs []platform.Function) {
	if len(funcs) == 0 {
		fmt.Println("No functions.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLANGUAGE\tVISIBILITY\tDESCRIPTION")
	for _, f := range funcs {
		visibility := "private"
		if f.IsPublic {
			visibility = "public"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Language, visibility, f.Description)
	}
	w.Flush()
}

func init() {
	fnListCmd.Flags().StringVarP(&fnFilter, "filter", "f", string(platform.TabAll), "Visibility filter: all, personal, public")
	fnListCmd.Flags().StringVarP(&fnSearch, "search", "s", "", "Filter by name or description")
	fnPullCmd.Flags().StringVarP(&fnOutput, "output", "o", "", "Output file (default: derived from the function name)")

	for _, c := range []*cobra.Command{fnCreateCmd, fnEditCmd} {
		c.Flags().StringVar(&fnName, "name", "", "Function name")
		c.Flags().StringVar(&fnDescription, "description", "", "Function description")
		c.Flags().StringVar(&fnCode, "code", "", "Function source code")
		c.Flags().StringVar(&fnCodeFile, "code-file", "", "Read source code from a file")
		c.Flags().StringVar(&fnLanguage, "language", "python", "Implementation language")
	}
	fnCreateCmd.Flags().BoolVar(&fnPublic, "public", false, "Create as a public function")

	fnCmd.AddCommand(fnListCmd)
	fnCmd.AddCommand(fnCreateCmd)
	fnCmd.AddCommand(fnEditCmd)
	fnCmd.AddCommand(fnToggleCmd)
	fnCmd.AddCommand(fnDeleteCmd)
	fnCmd.AddCommand(fnShowCmd)
	fnCmd.AddCommand(fnPullCmd)
}
