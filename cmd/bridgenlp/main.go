package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bridgenlp/internal/api"
	"bridgenlp/internal/config"
	"bridgenlp/internal/identity"
	"bridgenlp/internal/logging"
	"bridgenlp/internal/platform"
	"bridgenlp/internal/session"
	"bridgenlp/internal/snapshot"
	"bridgenlp/internal/syncer"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// app is the wired application, built in PersistentPreRunE.
	app *appContext
)

// appContext holds the wired collaborators shared by every command.
type appContext struct {
	cfg      *config.Config
	store    *session.Store
	provider *identity.Provider
	client   *api.Client
	snap     *snapshot.Store
	watcher  *identity.SessionWatcher

	library *syncer.Synchronizer
	public  *syncer.Synchronizer
	history *syncer.History

	auth    *platform.AuthClient
	profile *platform.ProfileClient
	chat    *platform.ChatClient
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bridgenlp",
	Short: "BridgeNLP - natural language command execution client",
	Long: `BridgeNLP is the command-line client for the BridgeNLP platform.

It manages your function library, the public function store, execution
history, and a chat interface to the server-side NLP agent that maps
natural language to function executions.

Sign in first with 'bridgenlp login', then explore with 'bridgenlp fn list'
or 'bridgenlp chat'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = newApp()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.close()
		}
	},
}

// newApp loads configuration and wires the application graph. The session
// store is initialized exactly once; a persisted session on disk signs the
// user in without any network traffic.
func newApp() (*appContext, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logging.Init(level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	a := &appContext{cfg: cfg, store: session.NewStore()}

	err = a.store.EnsureInitialized(func() (session.Provider, error) {
		a.provider = identity.NewProvider(identity.Config{
			APIKey:      cfg.Identity.APIKey,
			AccountsURL: cfg.Identity.AccountsURL,
			TokenURL:    cfg.Identity.TokenURL,
			SessionFile: cfg.SessionFile(),
		})
		return a.provider, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}
	a.client = api.NewClient(cfg.APIBaseURL, timeout, a.provider)

	opts := syncer.Options{Defaults: platform.DefaultFunctions()}
	pubOpts := syncer.Options{}
	if cfg.Snapshot.Enabled {
		snap, err := snapshot.Open(cfg.SnapshotFile())
		if err != nil {
			logging.Get(logging.CategoryStore).Warnw("snapshot cache unavailable", "err", err)
		} else {
			a.snap = snap
			opts.Snapshot = snap
			pubOpts.Snapshot = snap
		}
	}

	// Snapshots are scoped per user so two accounts on one machine never
	// read each other's cached collections.
	scope := "anonymous"
	if u := a.provider.CurrentUser(); u != nil {
		scope = u.UID
	}
	a.library = syncer.New(scope+".functions.mine", platform.NewUserFunctions(a.client), a.store, opts)
	a.public = syncer.New(scope+".functions.public", platform.NewPublicFunctions(a.client), a.store, pubOpts)
	var histSnap syncer.SnapshotStore
	if a.snap != nil {
		histSnap = a.snap
	}
	a.history = syncer.NewHistory(scope+".history", platform.NewHistory(a.client), a.store, histSnap)

	a.auth = platform.NewAuth(a.client, a.provider)
	a.profile = platform.NewProfile(a.client)
	a.chat = platform.NewChat(a.client)

	// Pick up sessions established or torn down by other processes.
	if w, err := identity.NewSessionWatcher(a.provider); err == nil {
		a.watcher = w
		if err := w.Start(context.Background()); err != nil {
			a.watcher = nil
		}
	}

	return a, nil
}

func (a *appContext) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.snap != nil {
		_ = a.snap.Close()
	}
	logging.Sync()
}

// requireAuth guards commands that need a signed-in user.
func (a *appContext) requireAuth() error {
	if !a.store.IsAuthenticated() {
		return fmt.Errorf("not signed in; run 'bridgenlp login' first")
	}
	return nil
}

// loadLibrary loads the user's function collection and seeds the defaults
// when a fresh account's library comes back empty.
func (a *appContext) loadLibrary(ctx context.Context) error {
	if _, err := a.library.Load(ctx); err != nil {
		return err
	}
	return a.library.BootstrapDefaultsIfEmpty(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.bridgenlp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(resetPasswordCmd)
	rootCmd.AddCommand(fnCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
