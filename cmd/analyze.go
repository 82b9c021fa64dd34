package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aarthig0611/face-recognition-app/internal/config"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image...]",
	Short: "Resolve the faces in photos",
	Long: `Detect every face in the given photos and resolve it against the
gallery. Unknown faces are listed once per photo with their fingerprint.

Example:
  facerec analyze party.jpg
  facerec analyze *.jpg --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make(map[string]any, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		analysis, err := a.manager.Analyze(ctx, data)
		if err != nil {
			return fmt.Errorf("failed to analyze %s: %w", path, err)
		}

		if jsonOutput {
			results[path] = analysis
			continue
		}

		fmt.Printf("%s: %d faces\n", path, len(analysis.Faces))
		if len(analysis.Faces) == 0 {
			fmt.Println()
			continue
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  LABEL\tDISTANCE\tEMOTION\tAGE\tGENDER\tBOX")
		for _, f := range analysis.Faces {
			fmt.Fprintf(w, "  %s\t%.3f\t%s\t%.0f\t%s\t%.0f,%.0f %.0fx%.0f\n",
				f.Label, f.Distance, f.Emotion, f.Age, f.Gender, f.Box.X, f.Box.Y, f.Box.Width, f.Box.Height)
		}
		w.Flush()

		for _, u := range analysis.Unresolved {
			fmt.Printf("  unknown face at %.0f,%.0f (fingerprint %.32s...)\n", u.Box.X, u.Box.Y, u.Fingerprint)
		}
		fmt.Println()
	}

	if jsonOutput {
		return outputJSON(results)
	}
	return nil
}
