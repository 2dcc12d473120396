package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// annotationStandalone marks commands that run without services.
const annotationStandalone = "standalone"

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// configPath overrides the settings file location.
	configPath string

	// Services holds injected service implementations for CLI commands.
	appService     driving.AppService
	syncService    driving.SyncService
	messageService driving.MessageService
	server         Server
	watchSettings  func(ctx context.Context) error
	serverAddr     string

	bootstrap Bootstrapper
	release   func()
)

// Server serves the callback and login endpoints.
type Server interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// Services holds configuration for CLI commands.
type Services struct {
	Apps     driving.AppService
	Sync     driving.SyncService
	Messages driving.MessageService
	Server   Server
	// WatchSettings starts reloading the settings file on edits.
	WatchSettings func(ctx context.Context) error
	// Addr is the default listen address of serve.
	Addr string
}

// Bootstrapper builds the services from the settings file at path, which is
// empty for the default location. The returned func releases them.
type Bootstrapper func(ctx context.Context, path string) (*Services, func(), error)

// SetServices injects service implementations for CLI commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	appService = s.Apps
	syncService = s.Sync
	messageService = s.Messages
	server = s.Server
	watchSettings = s.WatchSettings
	serverAddr = s.Addr
}

// SetBootstrap registers the builder run before every command that needs
// services.
func SetBootstrap(b Bootstrapper) {
	bootstrap = b
}

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "dingsync",
	Short: "Mirror a DingTalk organisation into the local HR store",
	Long: `dingsync mirrors the department tree and employees of a DingTalk
organisation into a local HR record store, sends work notifications and
serves the callback endpoints that keep the mirror current.

Apps are registered with 'dingsync app add'.`,
	SilenceUsage: true,
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if release != nil {
			release()
			release = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.dingsync/config.toml)")

	// Use PersistentPreRunE to set verbose mode before any command executes
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if bootstrap == nil || cmd.Annotations[annotationStandalone] == "true" {
			return nil
		}
		svcs, closeFn, err := bootstrap(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		SetServices(svcs)
		release = closeFn
		return nil
	}
}
