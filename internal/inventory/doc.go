// Package inventory resolves requested repository paths into a flat list of
// entries.
//
// One itemsbatch request is sent for all requested paths with full
// recursion, so a folder expands to every descendant in a single round
// trip. The response holds one group of items per requested path; groups
// are flattened, deduplicated by identity and sorted by path so that runs
// are reproducible.
//
// # Usage
//
//	resolver := inventory.NewResolver(client, repoURL)
//	inv, err := resolver.Resolve(ctx, inventory.Request{
//	    Paths:       []string{"/src/app.config", "/build/"},
//	    Version:     "main",
//	    VersionType: "branch",
//	})
package inventory
