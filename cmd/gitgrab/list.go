package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ligustah/gitgrab/internal/inventory"
)

type listedEntry struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
	ObjectID string `json:"objectId"`
	CommitID string `json:"commitId,omitempty"`
	URL      string `json:"url,omitempty"`
}

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		flags      sourceFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list [REPO_URL TOKEN PATH_CSV [VERSION] [VERSION_TYPE]]",
		Short: "Print the resolved inventory without downloading",
		Args:  cobra.MaximumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, args)
			if err != nil {
				return exitWith(ExitInvalidArgs, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, cfg, stderr)
			if err != nil {
				return exitWith(ExitGeneralError, err)
			}
			defer s.close()

			inv, err := s.resolve(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printInventoryJSON(stdout, inv)
			}
			return printInventory(stdout, inv)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printInventory(w io.Writer, inv inventory.Inventory) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TYPE\tPATH\tOBJECT_ID"); err != nil {
		return err
	}
	for _, e := range inv {
		kind := "file"
		if e.IsFolder {
			kind = "folder"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, e.Path, e.ObjectID); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d entries (%d files)\n", len(inv), inv.Files())
	return err
}

func printInventoryJSON(w io.Writer, inv inventory.Inventory) error {
	out := make([]listedEntry, 0, len(inv))
	for _, e := range inv {
		out = append(out, listedEntry{
			Path:     e.Path,
			IsFolder: e.IsFolder,
			ObjectID: e.ObjectID,
			CommitID: e.CommitID,
			URL:      e.ContentURL,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
