package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/indexer"
	"github.com/carelink/medirank/store"
)

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the vector index artifacts for one domain from a catalog snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		domain, err := parseDomain(mustString(cmd, "domain"))
		if err != nil {
			return err
		}

		entries, err := readCatalog(mustString(cmd, "catalog"))
		if err != nil {
			return err
		}

		embedder, err := newEmbedder(p)
		if err != nil {
			return err
		}

		// Embedding archival needs the vector-typed store; sqlite rebuilds
		// from the catalog snapshot instead.
		var archive *store.Store
		if p.Driver == "postgres" {
			if archive, err = openStore(cmd, p); err != nil {
				return err
			}
			defer archive.Close()
		}

		ix := indexer.New(embedder, archive, indexer.Config{
			DataDir: p.Data,
			Model:   p.EmbeddingModel,
		})
		result, err := ix.Build(cmd.Context(), domain, entries)
		if err != nil {
			return err
		}

		fmt.Printf("indexed %d %s entries (failed batches: %d, clusters: %d) in %s\n",
			result.Entries, result.Domain, result.FailedBatches, result.Nlist, result.Elapsed.Round(1e6))
		return nil
	},
}

func init() {
	buildIndexCmd.Flags().String("domain", "", "catalog domain to index")
	buildIndexCmd.Flags().String("catalog", "", "path to the catalog snapshot (JSON array of entries)")
	_ = buildIndexCmd.MarkFlagRequired("domain")
	_ = buildIndexCmd.MarkFlagRequired("catalog")
}

func readCatalog(path string) ([]*recommend.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog file")
	}
	defer f.Close()

	var entries []*recommend.CatalogEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode catalog file")
	}
	return entries, nil
}

func mustString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return value
}
