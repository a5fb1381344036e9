package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

type fakeApp struct {
	mode    monitor.PassMode
	passErr error
	ran     bool
	closed  bool
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) RunPass(_ context.Context, mode monitor.PassMode) (monitor.PassSummary, error) {
	f.mode = mode
	if f.passErr != nil {
		return monitor.PassSummary{}, f.passErr
	}
	return monitor.PassSummary{
		Mode:             mode,
		TotalActiveCount: 1,
		Results:          []monitor.CheckResult{{TargetID: "t1", Outcome: monitor.OutcomeUnchanged, Fingerprint: "fp"}},
	}, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	t.Setenv("PAGEWATCH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	prev := newApp
	newApp = func(context.Context, config.Config) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckCommandPrintsSummary(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	out, err := execute(t, "check", "--all")
	require.NoError(t, err)
	require.Equal(t, monitor.PassAll, app.mode)
	require.True(t, app.closed)

	var resp api.PassResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.CheckedCount)
	require.Equal(t, "t1", resp.Results[0].TargetID)
}

func TestCheckCommandDefaultsToDue(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "check")
	require.NoError(t, err)
	require.Equal(t, monitor.PassDue, app.mode)
}

func TestCheckCommandReturnsPassError(t *testing.T) {
	app := &fakeApp{passErr: errors.New("db down")}
	withFakeApp(t, app)

	_, err := execute(t, "check")
	require.ErrorContains(t, err, "db down")
	require.True(t, app.closed)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
}

func TestDiffCommand(t *testing.T) {
	withFakeApp(t, nil)
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("Hello"), 0o600))
	require.NoError(t, os.WriteFile(newPath, []byte("Hello World"), 0o600))

	out, err := execute(t, "diff", oldPath, newPath)
	require.NoError(t, err)
	require.Contains(t, out, "Content changes detected: 1 words added, 0 words removed")
	require.Contains(t, out, "ADDED: World")

	out, err = execute(t, "diff", "--json", oldPath, newPath)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, true, result["has_changes"])
}

func TestDiffCommandMissingFile(t *testing.T) {
	withFakeApp(t, nil)

	_, err := execute(t, "diff", "/nonexistent/a", "/nonexistent/b")
	require.ErrorContains(t, err, "read old file")
}
