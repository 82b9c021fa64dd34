package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/database"
	"github.com/aarthig0611/face-recognition-app/internal/gallery"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List known identities",
	Long: `List every identity stored in the gallery backend with the number of
reference embeddings it holds.`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open gallery store: %w", err)
	}
	defer store.Close()

	identities, err := store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}
	g, err := gallery.New(identities, cfg.Gallery.Dim)
	if err != nil {
		return fmt.Errorf("invalid gallery: %w", err)
	}

	if jsonOutput {
		type entry struct {
			Label      string `json:"label"`
			Embeddings int    `json:"embeddings"`
		}
		out := make([]entry, 0, g.Len())
		for _, label := range g.Labels() {
			id, _ := g.Lookup(label)
			out = append(out, entry{Label: label, Embeddings: len(id.Embeddings)})
		}
		return outputJSON(out)
	}

	if g.Len() == 0 {
		fmt.Printf("No identities in the %s gallery.\n", store.Backend())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tEMBEDDINGS")
	fmt.Fprintln(w, "-----\t----------")

	for _, label := range g.Labels() {
		id, _ := g.Lookup(label)
		fmt.Fprintf(w, "%s\t%d\n", label, len(id.Embeddings))
	}

	w.Flush()

	fmt.Printf("\nTotal: %d identities, %d embeddings (%s)\n", g.Len(), g.EmbeddingCount(), store.Backend())

	return nil
}
