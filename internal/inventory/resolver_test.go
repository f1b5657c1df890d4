package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	calls []string
	body  any
	resp  string
	err   error
}

func (f *fakePoster) Post(_ context.Context, url string, body any) ([]byte, error) {
	f.calls = append(f.calls, url)
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.resp), nil
}

func paths(inv Inventory) []string {
	out := make([]string, len(inv))
	for i, e := range inv {
		out[i] = e.Path
	}
	return out
}

func TestResolveBuildsOneBatchRequest(t *testing.T) {
	poster := &fakePoster{resp: `{"count":1,"value":[[{"objectId":"o1","path":"/a.txt","url":"U1"}]]}`}
	r := NewResolver(poster, "https://dev.azure.com/org/_apis/git/repositories/repo/")

	inv, err := r.Resolve(context.Background(), Request{
		Paths:       []string{"/a.txt", "/build/"},
		Version:     "main",
		VersionType: "branch",
	})
	require.NoError(t, err)
	require.Len(t, inv, 1)

	require.Equal(t, []string{"https://dev.azure.com/org/_apis/git/repositories/repo/itemsbatch"}, poster.calls)

	encoded, err := json.Marshal(poster.body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"itemDescriptors": [
			{"path":"/a.txt","version":"main","versionType":"branch","versionOptions":"none","recursionLevel":"full"},
			{"path":"/build/","version":"main","versionType":"branch","versionOptions":"none","recursionLevel":"full"}
		],
		"includeContentMetadata": "true"
	}`, string(encoded))
}

func TestResolveDeduplicatesAcrossGroups(t *testing.T) {
	poster := &fakePoster{resp: `{
		"count": 2,
		"value": [
			[
				{"objectId":"tree1","path":"/src","isFolder":true},
				{"objectId":"b2","path":"/src/main.go","url":"U2"},
				{"objectId":"b1","path":"/src/a.go","url":"U1"}
			],
			[
				{"objectId":"b1","path":"/src/a.go","url":"U1"}
			]
		]
	}`}
	r := NewResolver(poster, "https://host/repo")

	inv, err := r.Resolve(context.Background(), Request{Paths: []string{"/src", "/src/a.go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/src", "/src/a.go", "/src/main.go"}, paths(inv))
	assert.True(t, inv[0].IsFolder)
	assert.Equal(t, 2, inv.Files())
	assert.Equal(t, "U1", inv[1].ContentURL)
}

func TestResolveEmptyPaths(t *testing.T) {
	r := NewResolver(&fakePoster{}, "https://host/repo")
	_, err := r.Resolve(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoPaths)
}

func TestResolveSurfacesTransportError(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&fakePoster{err: boom}, "https://host/repo")

	_, err := r.Resolve(context.Background(), Request{Paths: []string{"/"}})
	assert.ErrorIs(t, err, boom)
}

func TestResolveDecodeError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>sign in</html>"},
		{"missing value", `{"count":0}`},
		{"null value", `{"count":0,"value":null}`},
		{"flat value", `{"count":1,"value":[{"path":"/a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakePoster{resp: tt.body}, "https://host/repo")
			_, err := r.Resolve(context.Background(), Request{Paths: []string{"/"}})

			var de *DecodeError
			assert.True(t, errors.As(err, &de), "got %v", err)
		})
	}
}

func TestFlattenSortsByPath(t *testing.T) {
	resp := BatchResponse{Value: [][]Item{
		{{ObjectID: "3", Path: "/z.txt"}, {ObjectID: "1", Path: "/a.txt"}},
		{{ObjectID: "2", Path: "/m/n.txt"}},
	}}

	inv := Flatten(resp, IdentityObjectID)
	assert.Equal(t, []string{"/a.txt", "/m/n.txt", "/z.txt"}, paths(inv))
}

func TestFlattenIdentityKeys(t *testing.T) {
	// Two paths with identical content share a blob id.
	resp := BatchResponse{Value: [][]Item{
		{{ObjectID: "same", Path: "/one.txt"}, {ObjectID: "same", Path: "/two.txt"}},
		{{Path: "/nohash.txt"}, {Path: "/nohash.txt"}},
	}}

	byObject := Flatten(resp, IdentityObjectID)
	assert.Equal(t, []string{"/nohash.txt", "/one.txt"}, paths(byObject))

	byPath := Flatten(resp, IdentityPath)
	assert.Equal(t, []string{"/nohash.txt", "/one.txt", "/two.txt"}, paths(byPath))
}

func TestFlattenEmpty(t *testing.T) {
	assert.Empty(t, Flatten(BatchResponse{Value: [][]Item{{}, {}}}, IdentityObjectID))
}

func TestParseIdentityKey(t *testing.T) {
	k, ok := ParseIdentityKey("")
	assert.True(t, ok)
	assert.Equal(t, IdentityObjectID, k)

	k, ok = ParseIdentityKey("path")
	assert.True(t, ok)
	assert.Equal(t, IdentityPath, k)

	_, ok = ParseIdentityKey("sha")
	assert.False(t, ok)
}
