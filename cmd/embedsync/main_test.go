package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// testApp returns the CLI with exit handling disabled so tests can inspect
// exit codes.
func testApp() (*cli.App, *bytes.Buffer) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, &out
}

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func stringFlag(flags []cli.Flag, name string) *cli.StringFlag {
	for _, flag := range flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func intFlag(flags []cli.Flag, name string) *cli.IntFlag {
	for _, flag := range flags {
		if f, ok := flag.(*cli.IntFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app, _ := testApp()

	t.Run("config has default value", func(t *testing.T) {
		f := stringFlag(app.Flags, "config")
		require.NotNil(t, f)
		assert.Equal(t, "config.yaml", f.Value)
		assert.Equal(t, []string{"EMBEDSYNC_CONFIG"}, f.EnvVars)
	})

	t.Run("log-level defaults to info", func(t *testing.T) {
		f := stringFlag(app.Flags, "log-level")
		require.NotNil(t, f)
		assert.Equal(t, "info", f.Value)
	})

	t.Run("log-format defaults to text", func(t *testing.T) {
		f := stringFlag(app.Flags, "log-format")
		require.NotNil(t, f)
		assert.Equal(t, "text", f.Value)
	})

	t.Run("log-file has no default", func(t *testing.T) {
		f := stringFlag(app.Flags, "log-file")
		require.NotNil(t, f)
		assert.Empty(t, f.Value)
	})
}

func TestPlanCommandFlags(t *testing.T) {
	app, _ := testApp()
	cmd := findCommand(t, app, "plan")

	t.Run("package-size has default value of 10", func(t *testing.T) {
		f := intFlag(cmd.Flags, "package-size")
		require.NotNil(t, f)
		assert.Equal(t, 10, f.Value)
	})

	t.Run("packages is required", func(t *testing.T) {
		f := intFlag(cmd.Flags, "packages")
		require.NotNil(t, f)
		assert.True(t, f.Required)

		err := app.Run([]string{"embedsync", "plan"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "packages")
	})
}

func TestSearchCommandFlags(t *testing.T) {
	app, _ := testApp()
	cmd := findCommand(t, app, "search")
	f := intFlag(cmd.Flags, "limit")
	require.NotNil(t, f)
	assert.Equal(t, 5, f.Value)
}

func TestSetupLogger_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"level", []string{"--log-level", "loud"}, "invalid log level"},
		{"format", []string{"--log-format", "xml"}, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := testApp()
			args := append([]string{"embedsync"}, tt.args...)
			err := app.Run(append(args, "status"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMissingConfigExitsWithOne(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")
	for _, command := range []string{"run", "refresh", "status"} {
		t.Run(command, func(t *testing.T) {
			app, _ := testApp()
			err := app.Run([]string{"embedsync", "--config", missing, command})
			require.Error(t, err)

			var exit cli.ExitCoder
			require.True(t, errors.As(err, &exit))
			assert.Equal(t, 1, exit.ExitCode())
			assert.Contains(t, err.Error(), "config_example.yaml")
		})
	}
}

func TestCommandGuards(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	app, _ := testApp()
	err := app.Run([]string{"embedsync", "--config", missing, "recreate-collection"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	app, _ = testApp()
	err = app.Run([]string{"embedsync", "--config", missing, "search"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	long := strings.Repeat("x", 20)
	assert.Equal(t, strings.Repeat("x", 5)+"...", snippet(long, 5))
}
