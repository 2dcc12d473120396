package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

func TestSetVersion(t *testing.T) {
	// Given
	originalVersion := version
	defer func() { version = originalVersion }()

	// When
	SetVersion("1.2.3")

	// Then
	assert.Equal(t, "1.2.3", version)
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "dingsync", rootCmd.Use)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	commands := rootCmd.Commands()

	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	for _, name := range []string{"app", "sync", "send", "logs", "serve", "version"} {
		assert.Contains(t, commandNames, name, "should have %s command", name)
	}
}

func TestExecute_ReturnsNoErrorWithHelp(t *testing.T) {
	oldOut := rootCmd.OutOrStdout()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})
	defer func() {
		rootCmd.SetOut(oldOut)
		rootCmd.SetArgs(nil)
	}()

	err := Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "dingsync")
}

func TestSetServices_WithNilServices(t *testing.T) {
	old := appService
	defer func() { appService = old }()

	appService = &mockAppService{}
	SetServices(nil)

	assert.NotNil(t, appService)
}

func TestSetServices_WithValidServices(t *testing.T) {
	defer SetServices(&Services{})

	SetServices(&Services{
		Apps:     &mockAppService{},
		Sync:     &mockSyncService{},
		Messages: &mockMessageService{},
		Server:   &mockServer{},
		Addr:     ":9000",
	})

	assert.NotNil(t, appService)
	assert.NotNil(t, syncService)
	assert.NotNil(t, messageService)
	assert.NotNil(t, server)
	assert.Equal(t, ":9000", serverAddr)
}

func TestExecute_BootstrapsAndReleases(t *testing.T) {
	resetFlags(rootCmd)
	apps := &mockAppService{apps: []domain.App{{ID: "a1", Name: "hq"}}}
	var (
		gotPath  string
		released bool
	)
	SetBootstrap(func(_ context.Context, path string) (*Services, func(), error) {
		gotPath = path
		return &Services{Apps: apps}, func() { released = true }, nil
	})
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--config", "/tmp/dingsync.toml", "app", "list"})
	defer func() {
		SetBootstrap(nil)
		SetServices(&Services{})
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, Execute())

	assert.Equal(t, "/tmp/dingsync.toml", gotPath)
	assert.True(t, released)
	assert.Contains(t, buf.String(), "hq")
}

func TestExecute_BootstrapFailure(t *testing.T) {
	SetBootstrap(func(context.Context, string) (*Services, func(), error) {
		return nil, nil, errors.New("open database: locked")
	})
	defer SetBootstrap(nil)

	_, err := runCLI(t, nil, "app", "list")

	assert.ErrorContains(t, err, "locked")
}

func TestVersion_SkipsBootstrap(t *testing.T) {
	SetBootstrap(func(context.Context, string) (*Services, func(), error) {
		return nil, nil, errors.New("should not run")
	})
	defer SetBootstrap(nil)
	old := version
	defer func() { version = old }()
	SetVersion("1.4.0")

	out, err := runCLI(t, nil, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "dingsync 1.4.0")
}
