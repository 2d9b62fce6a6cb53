package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var embedReset bool

var embedPendingCmd = &cobra.Command{
	Use:   "embed-pending",
	Short: "Compute embeddings for phrases still marked pending",
	Long: `Embed every phrase that has no embedding yet, for example after the
provider failed during a deferred add.

With --reset every stored embedding is discarded first and all phrases are
re-embedded. Use it after changing the embedding model or dimension.`,
	Args: cobra.NoArgs,
	RunE: runEmbedPending,
}

func init() {
	rootCmd.AddCommand(embedPendingCmd)
	embedPendingCmd.Flags().BoolVar(&embedReset, "reset", false, "discard existing embeddings and re-embed every phrase")
}

func runEmbedPending(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{resetEmbeddings: embedReset, forceSync: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if embedReset {
		n, err := a.resetEmbeddings()
		if err != nil {
			return fmt.Errorf("failed to reset embeddings: %w", err)
		}
		fmt.Printf("Reset %d embeddings\n", n)
	}

	var bar *progressbar.ProgressBar
	start := time.Now()
	progress := func(done, total int) {
		if bar == nil {
			bar = newProgressBar(total, "Embedding")
		}
		bar.Set(done)
		if done > 0 {
			rate := float64(done) / time.Since(start).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	handled, err := a.svc.EmbedPending(cmd.Context(), progress)
	fmt.Printf("\nEmbedded %d phrases\n", handled)
	if err != nil {
		return fmt.Errorf("some phrases remain pending: %w", err)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
