package inventory

// Fixed descriptor values: no version fallback, folders expand fully.
const (
	versionOptionsNone = "none"
	recursionFull      = "full"
)

// Descriptor selects one path at one version in an itemsbatch request.
type Descriptor struct {
	Path           string `json:"path"`
	Version        string `json:"version"`
	VersionType    string `json:"versionType"`
	VersionOptions string `json:"versionOptions"`
	RecursionLevel string `json:"recursionLevel"`
}

// BatchRequest is the itemsbatch request body.
type BatchRequest struct {
	ItemDescriptors        []Descriptor `json:"itemDescriptors"`
	IncludeContentMetadata string       `json:"includeContentMetadata"`
}

// BatchResponse is the itemsbatch response body. Value holds one group of
// items per requested descriptor.
type BatchResponse struct {
	Count int      `json:"count"`
	Value [][]Item `json:"value"`
}

// Item is one file or folder as reported by the API.
type Item struct {
	ObjectID        string           `json:"objectId"`
	GitObjectType   string           `json:"gitObjectType"`
	CommitID        string           `json:"commitId"`
	Path            string           `json:"path"`
	IsFolder        bool             `json:"isFolder"`
	ContentMetadata *ContentMetadata `json:"contentMetadata,omitempty"`
	URL             string           `json:"url"`
}

// ContentMetadata describes a file's content.
type ContentMetadata struct {
	FileName    string `json:"fileName"`
	Encoding    int    `json:"encoding"`
	ContentType string `json:"contentType"`
	Extension   string `json:"extension"`
}

// Request is the set of paths to resolve at one revision.
type Request struct {
	Paths       []string
	Version     string
	VersionType string
}

// Descriptors builds one descriptor per requested path.
func (r Request) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.Paths))
	for _, p := range r.Paths {
		out = append(out, Descriptor{
			Path:           p,
			Version:        r.Version,
			VersionType:    r.VersionType,
			VersionOptions: versionOptionsNone,
			RecursionLevel: recursionFull,
		})
	}
	return out
}

// IdentityKey selects which field deduplicates entries.
type IdentityKey string

const (
	// IdentityObjectID keys on the content object id, falling back to the
	// path when the API omits it.
	IdentityObjectID IdentityKey = "objectId"
	// IdentityPath keys on the repository path.
	IdentityPath IdentityKey = "path"
)

// ParseIdentityKey maps a config value to an IdentityKey. The empty string
// selects IdentityObjectID.
func ParseIdentityKey(s string) (IdentityKey, bool) {
	switch IdentityKey(s) {
	case "", IdentityObjectID:
		return IdentityObjectID, true
	case IdentityPath:
		return IdentityPath, true
	default:
		return "", false
	}
}

// Entry is one resolved repository item.
type Entry struct {
	Path            string
	IsFolder        bool
	ContentURL      string
	ObjectID        string
	CommitID        string
	GitObjectType   string
	ContentMetadata *ContentMetadata
}

// Identity returns the deduplication key of e under key.
func (e Entry) Identity(key IdentityKey) string {
	if key == IdentityObjectID && e.ObjectID != "" {
		return e.ObjectID
	}
	return e.Path
}

func entryFromItem(it Item) Entry {
	return Entry{
		Path:            it.Path,
		IsFolder:        it.IsFolder,
		ContentURL:      it.URL,
		ObjectID:        it.ObjectID,
		CommitID:        it.CommitID,
		GitObjectType:   it.GitObjectType,
		ContentMetadata: it.ContentMetadata,
	}
}

// Inventory is a path-sorted list of entries, unique by identity.
type Inventory []Entry

// Files returns the number of non-folder entries.
func (inv Inventory) Files() int {
	n := 0
	for _, e := range inv {
		if !e.IsFolder {
			n++
		}
	}
	return n
}
