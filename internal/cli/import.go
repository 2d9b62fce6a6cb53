package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"soup/internal/adapter/fs"
)

var (
	importIncludes []string
	importExcludes []string
)

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Add every line of matching text files as a phrase",
	Long: `Walk a directory and add one phrase per non-blank line of every file
matching the include globs. Lines starting with # are skipped.

Examples:
  soup import ./phrases
  soup import . --include "**/*.list" --exclude "drafts/**"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringSliceVar(&importIncludes, "include", []string{"**/*.txt"}, "glob patterns of files to import")
	importCmd.Flags().StringSliceVar(&importExcludes, "exclude", nil, "glob patterns of files or directories to skip")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	walker := fs.NewWalker(importIncludes, importExcludes)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}

	var phrases []string
	for _, f := range files {
		lines, err := fs.ReadPhrases(f.Path)
		if err != nil {
			return err
		}
		phrases = append(phrases, lines...)
	}
	if len(phrases) == 0 {
		fmt.Printf("No phrases found in %d files.\n", len(files))
		return nil
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Importing %d phrases from %d files...\n", len(phrases), len(files))
	bar := newProgressBar(len(phrases), "Importing")

	ctx := cmd.Context()
	added, failed := 0, 0
	for _, text := range phrases {
		id, err := a.svc.Add(ctx, text)
		switch {
		case err == nil:
			added++
		case id != "":
			// stored as pending, recoverable with embed-pending
			added++
			failed++
		default:
			failed++
			a.log.Warn("failed to add phrase", "text", text, "error", err)
		}
		bar.Add(1)
	}

	fmt.Printf("\nImport complete:\n")
	fmt.Printf("  Phrases added:  %d\n", added)
	if failed > 0 {
		fmt.Printf("  Failures:       %d\n", failed)
	}
	if a.svc.Deferred() {
		fmt.Println("Waiting for background embeddings...")
	}
	return nil
}

func newProgressBar(total int, label string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", label)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}
