package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage integration apps",
	Long:  `Add, update, list or remove the DingTalk apps whose organisations are mirrored.`,
}

var appAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new app",
	Long: `Register a DingTalk app.

The app secret is read from the terminal without echo when --app-secret is
not given.

Examples:
  dingsync app add --name hq --app-key dingxxx --agent-id 1001 --company-id 1

  # Enable callbacks and account mirroring
  dingsync app add --name hq --app-key dingxxx --agent-id 1001 --company-id 1 \
    --sync-with-account --callback-token tok --aes-key <43 chars>`,
	Args: cobra.NoArgs,
	RunE: runAppAdd,
}

var appUpdateCmd = &cobra.Command{
	Use:   "update [app-id]",
	Short: "Change fields of an app",
	Long:  `Change the given fields of an app. Cached tokens of the app are dropped.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAppUpdate,
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered apps",
	Args:  cobra.NoArgs,
	RunE:  runAppList,
}

var appRemoveCmd = &cobra.Command{
	Use:   "remove [app-id]",
	Short: "Remove an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppRemove,
}

// Flags for app add and update.
var (
	appName            string
	appDescription     string
	appAgentID         string
	appKey             string
	appSecret          string
	appCompanyID       int64
	appSyncWithAccount bool
	appCallbackToken   string
	appAESKey          string
)

// readSecret reads a secret from the terminal without echo.
var readSecret = func(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", domain.Preconditionf("--app-secret is required when stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func bindAppFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&appName, "name", "", "display name, unique among apps")
	f.StringVar(&appDescription, "description", "", "free-form description")
	f.StringVar(&appAgentID, "agent-id", "", "agent id used to send work notifications")
	f.StringVar(&appKey, "app-key", "", "app key")
	f.StringVar(&appSecret, "app-secret", "", "app secret (prompted when omitted)")
	f.Int64Var(&appCompanyID, "company-id", 0, "local company the organisation is mirrored into")
	f.BoolVar(&appSyncWithAccount, "sync-with-account", false, "create and update a login account per employee")
	f.StringVar(&appCallbackToken, "callback-token", "", "callback signing token")
	f.StringVar(&appAESKey, "aes-key", "", "callback encoding AES key")
}

func init() {
	bindAppFlags(appAddCmd)
	bindAppFlags(appUpdateCmd)
	appCmd.AddCommand(appAddCmd)
	appCmd.AddCommand(appUpdateCmd)
	appCmd.AddCommand(appListCmd)
	appCmd.AddCommand(appRemoveCmd)
	rootCmd.AddCommand(appCmd)
}

func runAppAdd(cmd *cobra.Command, _ []string) error {
	if appService == nil {
		return errors.New("app service not configured")
	}

	secret := appSecret
	if secret == "" {
		var err error
		if secret, err = readSecret(cmd, "App secret: "); err != nil {
			return err
		}
	}

	app := &domain.App{
		Name:            appName,
		Description:     appDescription,
		AgentID:         appAgentID,
		AppKey:          appKey,
		AppSecret:       secret,
		CompanyID:       appCompanyID,
		SyncWithAccount: appSyncWithAccount,
		CallbackToken:   appCallbackToken,
		EncodingAESKey:  appAESKey,
	}
	if err := appService.Add(cmd.Context(), app); err != nil {
		return fmt.Errorf("failed to add app: %w", err)
	}

	cmd.Printf("Added app: %s (%s)\n", app.Name, app.ID)
	if app.CallbackEnabled() {
		cmd.Printf("Callback URL path: /callback/%s\n", app.ID)
	}
	return nil
}

func runAppUpdate(cmd *cobra.Command, args []string) error {
	if appService == nil {
		return errors.New("app service not configured")
	}

	ctx := cmd.Context()
	app, err := appService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get app: %w", err)
	}

	f := cmd.Flags()
	changed := 0
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
			changed++
		}
	}
	set("name", func() { app.Name = appName })
	set("description", func() { app.Description = appDescription })
	set("agent-id", func() { app.AgentID = appAgentID })
	set("app-key", func() { app.AppKey = appKey })
	set("app-secret", func() { app.AppSecret = appSecret })
	set("company-id", func() { app.CompanyID = appCompanyID })
	set("sync-with-account", func() { app.SyncWithAccount = appSyncWithAccount })
	set("callback-token", func() { app.CallbackToken = appCallbackToken })
	set("aes-key", func() { app.EncodingAESKey = appAESKey })
	if changed == 0 {
		return domain.Preconditionf("no fields to update")
	}

	if err := appService.Update(ctx, app); err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	cmd.Printf("Updated app: %s (%s)\n", app.Name, app.ID)
	return nil
}

func runAppList(cmd *cobra.Command, _ []string) error {
	if appService == nil {
		return errors.New("app service not configured")
	}

	apps, err := appService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list apps: %w", err)
	}
	if len(apps) == 0 {
		cmd.Println("No registered apps.")
		return nil
	}

	rows := make([][]string, 0, len(apps))
	for i := range apps {
		a := &apps[i]
		rows = append(rows, []string{
			a.ID,
			a.Name,
			a.AppKey,
			a.AgentID,
			strconv.FormatInt(a.CompanyID, 10),
			yesNo(a.SyncWithAccount),
			yesNo(a.CallbackEnabled()),
		})
	}
	cmd.Println(renderTable(
		[]string{"ID", "NAME", "APP KEY", "AGENT", "COMPANY", "ACCOUNTS", "CALLBACK"}, rows))
	return nil
}

func runAppRemove(cmd *cobra.Command, args []string) error {
	if appService == nil {
		return errors.New("app service not configured")
	}

	appID := args[0]
	if err := appService.Remove(cmd.Context(), appID); err != nil {
		return fmt.Errorf("failed to remove app: %w", err)
	}

	cmd.Printf("Removed app: %s\n", appID)
	cmd.Println("Note: Mirrored departments and employees were not removed.")
	return nil
}
