package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"soup/internal/domain"
)

var (
	searchLimit int
	searchJSON  bool
	listJSON    bool
)

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Store a phrase",
	Long: `Store a phrase and compute its embedding.

With add.mode: deferred the phrase is stored as pending first and embedded
in the background.

Examples:
  soup add happy
  soup add "a sunny afternoon"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored phrases in insertion order",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>...",
	Aliases: []string{"rm"},
	Short:   "Remove phrases by id",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemove,
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find the stored phrases closest in meaning",
	Long: `Embed the query and return the closest stored phrases, best first.
Phrases still waiting for their embedding are not searched.

Examples:
  soup search glad
  soup search "feeling great" --limit 3 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(addCmd, listCmd, removeCmd, searchCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.svc.Add(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		if id != "" {
			fmt.Printf("Stored %s as pending: %v\n", id, err)
			fmt.Println("Run 'soup embed-pending' to compute its embedding.")
			return nil
		}
		return err
	}

	if a.svc.Deferred() {
		fmt.Printf("Added %s (embedding in background)\n", id)
	} else {
		fmt.Printf("Added %s\n", id)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{forceSync: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	phrases, err := a.svc.List(ctx)
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(phrases)
	}

	if len(phrases) == 0 {
		fmt.Println("No phrases stored.")
		return nil
	}

	pending, err := a.store.ListPending(ctx)
	if err != nil {
		return err
	}
	isPending := make(map[string]bool, len(pending))
	for _, p := range pending {
		isPending[p.ID] = true
	}

	for _, p := range phrases {
		marker := ""
		if isPending[p.ID] {
			marker = "  (pending)"
		}
		fmt.Printf("%s  %s%s\n", p.ID, p.Text, marker)
	}
	fmt.Printf("\n%d phrases, %d pending\n", len(phrases), len(pending))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{forceSync: true})
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		if err := a.svc.Remove(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", id)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchLimit > 0 {
		GetConfig().Search.Limit = searchLimit
	}

	a, err := openApp(appOptions{forceSync: true})
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	results, err := a.svc.Search(cmd.Context(), query)
	if err != nil {
		return err
	}

	if searchJSON {
		return outputSearchJSON(results)
	}
	return outputSearchText(query, results)
}

func outputSearchJSON(results []domain.SearchResult) error {
	type jsonResult struct {
		ID      string  `json:"id"`
		Text    string  `json:"text"`
		Score   float64 `json:"score"`
		Percent int     `json:"percent"`
	}

	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{ID: r.ID, Text: r.Text, Score: r.Score, Percent: r.Percent()}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputSearchText(query string, results []domain.SearchResult) error {
	if len(results) == 0 {
		fmt.Println("No matching phrases.")
		return nil
	}

	fmt.Printf("Closest to %q:\n\n", query)
	for i, r := range results {
		fmt.Printf("%2d. %3d%%  %s  [%s]\n", i+1, r.Percent(), r.Text, r.ID)
	}
	return nil
}
