// Package testutils provides shared test infrastructure: an in-process fake
// of the repository items API and, behind the integration build tag, a MinIO
// container.
package testutils

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	grabhttp "github.com/ligustah/gitgrab/internal/http"
	"github.com/ligustah/gitgrab/internal/inventory"
)

const repoPath = "/org/_apis/git/repositories/repo"

// RepoFile is one item served by a FakeRepo. A nil Content with a trailing
// slash in Path, or Folder set, marks a folder.
type RepoFile struct {
	Path     string
	Content  []byte
	ObjectID string // defaults to the SHA-1 of Content
	Folder   bool
}

// FakeRepo serves the itemsbatch and item-content endpoints for a fixed set
// of files.
type FakeRepo struct {
	Server *httptest.Server
	Token  string

	mu       sync.Mutex
	files    []RepoFile
	failures map[string]int
	batches  []inventory.BatchRequest
	gets     map[string]int
}

// StartFakeRepo starts a FakeRepo that accepts only token. The server is
// closed when the test ends.
func StartFakeRepo(t testing.TB, token string, files []RepoFile) *FakeRepo {
	t.Helper()

	r := &FakeRepo{
		Token:    token,
		files:    files,
		failures: map[string]int{},
		gets:     map[string]int{},
	}
	for i := range r.files {
		f := &r.files[i]
		if strings.HasSuffix(f.Path, "/") && f.Content == nil {
			f.Folder = true
		}
		if f.ObjectID == "" {
			sum := sha1.Sum(f.Content)
			if f.Folder {
				sum = sha1.Sum([]byte("tree " + f.Path))
			}
			f.ObjectID = hex.EncodeToString(sum[:])
		}
	}

	r.Server = httptest.NewServer(http.HandlerFunc(r.serveHTTP))
	t.Cleanup(r.Server.Close)
	return r
}

// URL returns the repository URL to pass to the resolver.
func (r *FakeRepo) URL() string {
	return r.Server.URL + repoPath
}

// FailPath makes content requests for path answer with status.
func (r *FakeRepo) FailPath(path string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = status
}

// Batches returns the itemsbatch requests received so far.
func (r *FakeRepo) Batches() []inventory.BatchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.BatchRequest(nil), r.batches...)
}

// Gets returns how often the content of path was requested.
func (r *FakeRepo) Gets(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets[path]
}

func (r *FakeRepo) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Authorization") != grabhttp.BasicAuth(r.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if req.URL.Query().Get("api-version") == "" {
		http.Error(w, "api-version is required", http.StatusBadRequest)
		return
	}

	switch {
	case req.Method == http.MethodPost && req.URL.Path == repoPath+"/itemsbatch":
		r.serveBatch(w, req)
	case req.Method == http.MethodGet && req.URL.Path == repoPath+"/items":
		r.serveItem(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (r *FakeRepo) serveBatch(w http.ResponseWriter, req *http.Request) {
	var batch inventory.BatchRequest
	if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()

	resp := inventory.BatchResponse{Value: make([][]inventory.Item, 0, len(batch.ItemDescriptors))}
	for _, d := range batch.ItemDescriptors {
		group := []inventory.Item{}
		for _, f := range r.files {
			if matches(d.Path, f.Path) {
				group = append(group, r.item(f))
			}
		}
		resp.Value = append(resp.Value, group)
		resp.Count += len(group)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (r *FakeRepo) serveItem(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Query().Get("path")

	r.mu.Lock()
	r.gets[path]++
	status := r.failures[path]
	r.mu.Unlock()

	if status != 0 {
		http.Error(w, "injected failure", status)
		return
	}
	for _, f := range r.files {
		if f.Path == path && !f.Folder {
			w.Write(f.Content)
			return
		}
	}
	http.NotFound(w, req)
}

func (r *FakeRepo) item(f RepoFile) inventory.Item {
	objectType := "blob"
	if f.Folder {
		objectType = "tree"
	}
	return inventory.Item{
		ObjectID:      f.ObjectID,
		GitObjectType: objectType,
		CommitID:      "c0ffee",
		Path:          f.Path,
		IsFolder:      f.Folder,
		URL:           r.Server.URL + repoPath + "/items?path=" + url.QueryEscape(f.Path),
	}
}

// matches reports whether an item at path is returned for a full-recursion
// descriptor of requested.
func matches(requested, path string) bool {
	if requested == path {
		return true
	}
	prefix := strings.TrimSuffix(requested, "/") + "/"
	return strings.HasPrefix(path, prefix)
}
