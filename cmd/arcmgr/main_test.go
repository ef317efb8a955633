package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/config"
	"github.com/bamsammich/arcmgr/internal/inventory"
)

type result struct {
	stdout string
	stderr string
	code   int
}

// execute runs the CLI in-process with stdin as input.
func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	opts := &rootOptions{stdin: strings.NewReader(stdin), stdout: &out, stderr: &errOut}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if opts.logSink != nil {
		opts.logSink.Close()
	}
	code := exitCode(&errOut, err)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

// isolate points every default path into a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv(config.EnvCatalog, "")
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, exitCode(&buf, nil))
	assert.Equal(t, 1, exitCode(&buf, &exitError{code: 1}))
	assert.Empty(t, buf.String())

	assert.Equal(t, 2, exitCode(&buf, errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())

	buf.Reset()
	assert.Equal(t, 2, exitCode(&buf, &usageError{msg: "no catalog"}))
	assert.Contains(t, buf.String(), "no catalog")
}

func TestAlgoFlag(t *testing.T) {
	var f algoFlag
	require.NoError(t, f.Set("md5"))
	assert.Equal(t, inventory.Algorithm("md5"), f.algo)
	assert.Equal(t, "md5", f.String())
	assert.Equal(t, "algorithm", f.Type())
	assert.Error(t, f.Set("crc32"))
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\nmaybe\nD\nyes\n"), &out)

	answer, err := p.ask("Continue", "yes", "no", "diff")
	require.NoError(t, err)
	assert.Equal(t, "diff", answer)
	assert.Equal(t, 3, strings.Count(out.String(), "Continue [yes/no/diff]? "))

	answer, err = p.ask("Continue", "yes", "no")
	require.NoError(t, err)
	assert.Equal(t, "yes", answer)

	_, err = p.ask("Again", "y", "n")
	assert.ErrorIs(t, err, errPromptClosed)
}

func TestSelectorErrorsExitTwo(t *testing.T) {
	isolate(t)
	db := filepath.Join(t.TempDir(), "cat.db")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no selector", []string{"compare"}, "is required"},
		{"two selectors", []string{"compare", "--id", "1", "--reqnum", "4"}, "mutually exclusive"},
		{"unitname alone", []string{"compare", "--unitname", "D1"}, "require reqnum"},
		{"bad id", []string{"delete", "--id", "x"}, "invalid id"},
		{"migrate without dest", []string{"migrate", "--id", "1"}, "--dest is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := execute(t, "", append([]string{"--catalog", db, "--archive", "desar"}, tt.args...)...)
			assert.Equal(t, 2, r.code)
			assert.Contains(t, r.stderr, tt.want)
		})
	}
}

func TestMissingCatalogExitTwo(t *testing.T) {
	isolate(t)
	r := execute(t, "", "compare", "--id", "1")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "no catalog")
}

func TestConfigDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "cat.db")
	root := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(root, 0o755))

	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"[defaults]\ncatalog = \""+db+"\"\narchive = \"fromconfig\"\nworkers = 3\n"), 0o644))

	r := execute(t, "", "--config", cfgPath, "catalog", "init", "--root", root)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "archive fromconfig rooted at "+root)

	// Flags win over the file.
	r = execute(t, "", "--config", cfgPath, "--archive", "fromflag", "catalog", "init", "--root", root)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "archive fromflag")

	opts := &rootOptions{cfg: config.Config{}}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--workers", "5"}))
	workers := 9
	opts.cfg.Defaults.Workers = &workers
	opts.applyConfigDefaults(cmd)
	assert.Equal(t, 5, opts.workers)
}

func TestVersion(t *testing.T) {
	isolate(t)
	r := execute(t, "", "--version")
	assert.Equal(t, 0, r.code)
	assert.Equal(t, "arcmgr dev\n", r.stdout)
}

func TestGenDocs(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	r := execute(t, "", "gen-docs", "--format", "markdown", "--dir", dir)
	require.Equal(t, 0, r.code, r.stderr)
	for _, name := range []string{"arcmgr.md", "arcmgr_compare.md", "arcmgr_migrate.md", "arcmgr_delete.md", "arcmgr_catalog_register.md"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	r = execute(t, "", "gen-docs", "--format", "pdf", "--dir", dir)
	assert.Equal(t, 2, r.code)
}
