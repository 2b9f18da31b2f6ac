package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Flags(t *testing.T) {
	assert.Equal(t, "jira-sync", rootCmd.Use)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().ShorthandLookup("v"))
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"backfill", "resync", "status", "subscription", "version", "worker"} {
		assert.Contains(t, names, want)
	}
}

func TestInitServices_UsesBootstrap(t *testing.T) {
	oldBootstrap, oldService, oldWorker, oldClose := bootstrap, backfillService, workerRunner, closeServices
	defer func() {
		bootstrap, backfillService, workerRunner, closeServices = oldBootstrap, oldService, oldWorker, oldClose
		configPath, verbose = "", false
	}()
	backfillService = nil

	mock := newMockBackfillService()
	var gotPath string
	var gotVerbose, closed bool
	SetBootstrap(func(path string, v bool) (*Services, error) {
		gotPath, gotVerbose = path, v
		return &Services{
			Backfill: mock,
			Close: func() error {
				closed = true
				return nil
			},
		}, nil
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"subscription", "list", "--config", "/tmp/jira-sync.toml", "-v"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute())
	assert.Equal(t, "/tmp/jira-sync.toml", gotPath)
	assert.True(t, gotVerbose)
	assert.True(t, closed)
	assert.Nil(t, closeServices)
	assert.Contains(t, buf.String(), "No subscriptions configured.")
}

func TestInitServices_BootstrapError(t *testing.T) {
	oldBootstrap, oldService := bootstrap, backfillService
	defer func() { bootstrap, backfillService = oldBootstrap, oldService }()
	backfillService = nil

	SetBootstrap(func(string, bool) (*Services, error) {
		return nil, errors.New("config broken")
	})

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"status", "1"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config broken")
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestWorkerCmd_Runs(t *testing.T) {
	oldWorker := workerRunner
	defer func() { workerRunner = oldWorker }()

	ran := false
	workerRunner = runnerFunc(func(ctx context.Context) error {
		ran = true
		assert.NoError(t, ctx.Err())
		return nil
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"worker"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "Worker started.")
	assert.Contains(t, buf.String(), "Worker stopped.")
}

func TestWorkerCmd_Errors(t *testing.T) {
	oldWorker := workerRunner
	defer func() { workerRunner = oldWorker }()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"worker"})
	defer rootCmd.SetArgs(nil)

	t.Run("not configured", func(t *testing.T) {
		workerRunner = nil
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker not configured")
	})

	t.Run("run fails", func(t *testing.T) {
		workerRunner = runnerFunc(func(context.Context) error { return errors.New("queue closed") })
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue closed")
	})
}
