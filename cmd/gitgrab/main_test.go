package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/gitgrab/internal/testutils"
)

const testToken = "s3cr3t-pat"

// lockedBuffer is shared by the logger and the progress reporter.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr lockedBuffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func sampleRepo(t *testing.T) *testutils.FakeRepo {
	t.Helper()
	return testutils.StartFakeRepo(t, testToken, []testutils.RepoFile{
		{Path: "/private/app.config", Content: []byte("<configuration/>")},
		{Path: "/build", Folder: true},
		{Path: "/build/run.sh", Content: []byte("#!/bin/sh\necho build\n")},
		{Path: "/build/lib", Folder: true},
		{Path: "/build/lib/util.sh", Content: []byte("echo util\n")},
	})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFetchPositional(t *testing.T) {
	repo := sampleRepo(t)
	dest := t.TempDir()

	code, stdout, stderr := runCLI(t, "fetch",
		repo.URL(), testToken, "/private/app.config,/build", "main", "branch", dest, "4",
		"--retry-delay", "1ms")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "Found 5 item(s) to download.")
	assert.Contains(t, stdout, "Entries: 5 | Completed: 3 | Skipped: 2 | Failed: 0")

	assert.Equal(t, "<configuration/>", readFile(t, filepath.Join(dest, "private", "app.config")))
	assert.Equal(t, "#!/bin/sh\necho build\n", readFile(t, filepath.Join(dest, "build", "run.sh")))
	assert.Equal(t, "echo util\n", readFile(t, filepath.Join(dest, "build", "lib", "util.sh")))

	batches := repo.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "true", batches[0].IncludeContentMetadata)
	require.Len(t, batches[0].ItemDescriptors, 2)
	for _, d := range batches[0].ItemDescriptors {
		assert.Equal(t, "main", d.Version)
		assert.Equal(t, "branch", d.VersionType)
		assert.Equal(t, "none", d.VersionOptions)
		assert.Equal(t, "full", d.RecursionLevel)
	}

	assert.NotContains(t, stderr, testToken)
	assert.Contains(t, stderr, strings.Repeat("*", len(testToken)))
}

func TestFetchFlagsAndDedupe(t *testing.T) {
	repo := sampleRepo(t)
	dest := t.TempDir()

	// /build/run.sh is reported twice: once on its own and once under /build.
	code, stdout, stderr := runCLI(t, "fetch",
		"--repo", repo.URL(),
		"--token", testToken,
		"--paths", "/build/run.sh , /build",
		"--dest", dest,
		"--parallel", "2")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "Found 4 item(s) to download.")
	assert.Equal(t, 1, repo.Gets("/build/run.sh"))
	assert.Equal(t, 0, repo.Gets("/build"))
}

func TestFetchExpandsDestination(t *testing.T) {
	repo := sampleRepo(t)
	root := t.TempDir()
	t.Setenv("GITGRAB_TEST_DROP", root)

	code, _, stderr := runCLI(t, "fetch", repo.URL(), testToken, "/private/app.config", "", "", "%GITGRAB_TEST_DROP%/out")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Equal(t, "<configuration/>", readFile(t, filepath.Join(root, "out", "private", "app.config")))
}

func TestFetchFailedEntryIsReported(t *testing.T) {
	repo := sampleRepo(t)
	repo.FailPath("/build/run.sh", http.StatusBadGateway)
	dest := t.TempDir()

	code, stdout, stderr := runCLI(t, "fetch", repo.URL(), testToken, "/build", "--dest", dest, "--retry-delay", "1ms")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "Completed: 1 | Skipped: 2 | Failed: 1")
	assert.Equal(t, 3, repo.Gets("/build/run.sh"))
	assert.Contains(t, stderr, "download failed")
	assert.NoFileExists(t, filepath.Join(dest, "build", "run.sh"))
	assert.FileExists(t, filepath.Join(dest, "build", "lib", "util.sh"))
}

func TestFetchBadRequestIsNotRetried(t *testing.T) {
	repo := sampleRepo(t)
	repo.FailPath("/build/run.sh", http.StatusBadRequest)

	code, _, stderr := runCLI(t, "fetch", repo.URL(), testToken, "/build/run.sh", "--dest", t.TempDir(), "--retry-delay", "1ms")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, 1, repo.Gets("/build/run.sh"))
}

func TestFetchStrict(t *testing.T) {
	repo := sampleRepo(t)
	repo.FailPath("/private/app.config", http.StatusNotFound)

	code, stdout, stderr := runCLI(t, "fetch", repo.URL(), testToken, "/private/app.config",
		"--dest", t.TempDir(), "--retry-attempts", "0", "--strict")
	assert.Equal(t, ExitEntriesFailed, code)
	assert.Contains(t, stdout, "Failed: 1")
	assert.Contains(t, stderr, "1 of 1 entries failed")
	assert.Equal(t, 1, repo.Gets("/private/app.config"))
}

func TestFetchInventoryTransportFailure(t *testing.T) {
	repo := sampleRepo(t)

	code, stdout, stderr := runCLI(t, "fetch", repo.URL(), "wrong-token", "/build", "--dest", t.TempDir(), "--retry-delay", "1ms")
	assert.Equal(t, ExitInventoryFailed, code)
	assert.Contains(t, stderr, "status 401")
	assert.NotContains(t, stdout, "Found")
}

func TestFetchInventoryDecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 1}`))
	}))
	defer server.Close()

	code, _, _ := runCLI(t, "fetch", server.URL+"/repo", testToken, "/a", "--dest", t.TempDir())
	assert.Equal(t, ExitInventoryDecode, code)
}

func TestFetchStorageFailure(t *testing.T) {
	repo := sampleRepo(t)

	code, stdout, _ := runCLI(t, "fetch", repo.URL(), testToken, "/build", "--dest", "nosuchscheme://bucket")
	assert.Equal(t, ExitStorageError, code)
	assert.Contains(t, stdout, "Found 5 item(s) to download.")
}

func TestFetchBucketDestination(t *testing.T) {
	repo := sampleRepo(t)
	dir := t.TempDir()

	code, stdout, stderr := runCLI(t, "fetch", repo.URL(), testToken, "/private/app.config,/build/lib",
		"--dest", "file://"+filepath.ToSlash(dir))
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Contains(t, stdout, "Completed download at file://")
	assert.Equal(t, "<configuration/>", readFile(t, filepath.Join(dir, "private", "app.config")))
	assert.Equal(t, "echo util\n", readFile(t, filepath.Join(dir, "build", "lib", "util.sh")))
}

func TestFetchConfigFile(t *testing.T) {
	repo := sampleRepo(t)
	dir := t.TempDir()
	dest := filepath.Join(dir, "drop")
	logFile := filepath.Join(dir, "gitgrab.log")

	configPath := filepath.Join(dir, "gitgrab.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
repo_url: `+repo.URL()+`
token: `+testToken+`
paths:
  - /private/app.config
dest: `+dest+`
parallel: 1
log:
  level: debug
  file: `+logFile+`
`), 0644))

	code, _, stderr := runCLI(t, "fetch", "--config", configPath, "--parallel", "3", "--progress")
	require.Equal(t, ExitSuccess, code, stderr)

	assert.Contains(t, stderr, "[gitgrab] Fetching: "+repo.URL())
	assert.Contains(t, stderr, "Workers: 3")
	assert.FileExists(t, filepath.Join(dest, "private", "app.config"))

	raw := readFile(t, logFile)
	assert.NotContains(t, raw, testToken)

	var sawDownload bool
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.NotEmpty(t, rec["run_id"])
		if rec["msg"] == "downloaded" {
			sawDownload = true
			assert.Equal(t, "/private/app.config", rec["path"])
		}
	}
	assert.True(t, sawDownload)
}

func TestFetchInvalidArgs(t *testing.T) {
	repo := sampleRepo(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", []string{"fetch"}},
		{"missing token", []string{"fetch", repo.URL(), "", "/a"}},
		{"no paths", []string{"fetch", repo.URL(), testToken, " , "}},
		{"bad parallel", []string{"fetch", repo.URL(), testToken, "/a", "", "", "drop", "many"}},
		{"zero parallel", []string{"fetch", repo.URL(), testToken, "/a", "--parallel", "-1"}},
		{"too many arguments", []string{"fetch", "1", "2", "3", "4", "5", "6", "7", "8"}},
		{"bad dedupe key", []string{"fetch", repo.URL(), testToken, "/a", "--dedupe-by", "sha"}},
		{"unknown flag", []string{"fetch", "--bogus"}},
		{"missing config file", []string{"fetch", "--config", "/nonexistent/gitgrab.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, ExitInvalidArgs, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
	assert.Empty(t, repo.Batches())
}

func TestListText(t *testing.T) {
	repo := sampleRepo(t)

	code, stdout, stderr := runCLI(t, "list", repo.URL(), testToken, "/build")
	require.Equal(t, ExitSuccess, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
	assert.True(t, strings.HasPrefix(lines[1], "folder"))
	assert.Contains(t, lines[1], "/build")
	assert.Contains(t, lines[2], "/build/lib")
	assert.Contains(t, lines[3], "/build/lib/util.sh")
	assert.Contains(t, lines[4], "/build/run.sh")
	assert.Contains(t, stdout, "4 entries (2 files)")
	assert.Zero(t, repo.Gets("/build/run.sh"))
}

func TestListJSON(t *testing.T) {
	repo := sampleRepo(t)

	code, stdout, stderr := runCLI(t, "list", repo.URL(), testToken, "/private/app.config", "--json")
	require.Equal(t, ExitSuccess, code, stderr)

	var entries []listedEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "/private/app.config", entries[0].Path)
	assert.False(t, entries[0].IsFolder)
	assert.Len(t, entries[0].ObjectID, 40)
}

func TestPositionalConfig(t *testing.T) {
	cfg, err := positionalConfig([]string{"https://host/repo", "pat", "/a,/b/", "v1", "tag", "out", "8"})
	require.NoError(t, err)

	assert.Equal(t, "https://host/repo", cfg.RepoURL)
	assert.Equal(t, "pat", cfg.Token)
	assert.Equal(t, []string{"/a", "/b/"}, cfg.Paths)
	assert.Equal(t, "v1", cfg.Version)
	assert.Equal(t, "tag", cfg.VersionType)
	assert.Equal(t, "out", cfg.Dest)
	assert.Equal(t, 8, cfg.Parallel)

	cfg, err = positionalConfig([]string{"https://host/repo"})
	require.NoError(t, err)
	assert.Empty(t, cfg.Version)
	assert.Zero(t, cfg.Parallel)
}
