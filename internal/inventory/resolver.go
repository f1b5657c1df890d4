package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// ErrNoPaths is returned when a request names no paths.
var ErrNoPaths = errors.New("inventory: no paths requested")

// DecodeError is returned when the itemsbatch response does not have the
// expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("inventory: decode itemsbatch response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Poster sends a JSON body and returns the response body.
type Poster interface {
	Post(ctx context.Context, url string, body any) ([]byte, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIdentityKey sets the deduplication key.
func WithIdentityKey(key IdentityKey) Option {
	return func(r *Resolver) {
		r.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver enumerates repository entries through the itemsbatch API.
type Resolver struct {
	client  Poster
	repoURL string
	key     IdentityKey
	logger  *slog.Logger
}

// NewResolver creates a resolver for the repository at repoURL.
func NewResolver(client Poster, repoURL string, opts ...Option) *Resolver {
	r := &Resolver{
		client:  client,
		repoURL: strings.TrimRight(repoURL, "/"),
		key:     IdentityObjectID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve sends one itemsbatch request for all paths in req and returns the
// flattened inventory.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Inventory, error) {
	if len(req.Paths) == 0 {
		return nil, ErrNoPaths
	}

	body := BatchRequest{
		ItemDescriptors:        req.Descriptors(),
		IncludeContentMetadata: "true",
	}

	r.logger.Debug("requesting inventory",
		slog.Int("paths", len(req.Paths)),
		slog.String("version", req.Version),
		slog.String("versionType", req.VersionType))

	data, err := r.client.Post(ctx, r.repoURL+"/itemsbatch", body)
	if err != nil {
		return nil, fmt.Errorf("inventory: itemsbatch: %w", err)
	}

	resp, err := Decode(data)
	if err != nil {
		return nil, err
	}

	inv := Flatten(resp, r.key)
	r.logger.Debug("inventory resolved",
		slog.Int("reported", resp.Count),
		slog.Int("entries", len(inv)),
		slog.Int("files", inv.Files()))

	return inv, nil
}

// Decode parses an itemsbatch response body.
func Decode(data []byte) (BatchResponse, error) {
	var raw struct {
		Count int              `json:"count"`
		Value *json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return BatchResponse{}, &DecodeError{Err: err}
	}
	if raw.Value == nil {
		return BatchResponse{}, &DecodeError{Err: errors.New(`missing "value"`)}
	}

	resp := BatchResponse{Count: raw.Count}
	if err := json.Unmarshal(*raw.Value, &resp.Value); err != nil {
		return BatchResponse{}, &DecodeError{Err: err}
	}
	return resp, nil
}

// Flatten merges all item groups, keeps the first entry for each identity
// and sorts the result by path.
func Flatten(resp BatchResponse, key IdentityKey) Inventory {
	seen := mapset.NewThreadUnsafeSet[string]()
	var inv Inventory

	for _, group := range resp.Value {
		for _, it := range group {
			e := entryFromItem(it)
			if !seen.Add(e.Identity(key)) {
				continue
			}
			inv = append(inv, e)
		}
	}

	sort.SliceStable(inv, func(i, j int) bool {
		return inv[i].Path < inv[j].Path
	})
	return inv
}
