package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/replygate/internal/config"
	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/spf13/cobra"
)

func KnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
		Long:  "Ingest, search and list knowledge entries used to ground generated replies",
	}

	cmd.AddCommand(KnowledgeIngestCmd())
	cmd.AddCommand(KnowledgeSearchCmd())
	cmd.AddCommand(KnowledgeListCmd())

	return cmd
}

func KnowledgeIngestCmd() *cobra.Command {
	var (
		title    string
		category string
		tags     []string
		file     string
		s3Key    string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a document",
		Long:  "Chunk a document from a local file or the document bucket and add it to the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (s3Key == "") {
				return fmt.Errorf("exactly one of --file or --s3-key is required")
			}
			outputFormat, _ := cmd.Flags().GetString("output")
			input := service.IngestInput{Title: title, Category: category, Tags: tags}
			return runKnowledgeIngest(outputFormat, input, file, s3Key)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Entry title (defaults to the file name or key)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Entry category")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a UTF-8 text document")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "Object key in the document bucket")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeIngest(outputFormat string, input service.IngestInput, file, s3Key string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	stack, err := newKnowledgeStack(ctx, cfg, pool, newAPIClient(cfg))
	if err != nil {
		return err
	}

	var entry *domain.KnowledgeEntry
	if s3Key != "" {
		entry, err = stack.service.IngestFromSource(ctx, s3Key, input)
	} else {
		var raw []byte
		raw, err = os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if strings.TrimSpace(input.Title) == "" {
			input.Title = file
		}
		input.Content = string(raw)
		entry, err = stack.service.Ingest(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to ingest document: %w", err)
	}

	if outputFormat == "json" {
		printJSON(entrySummary(entry))
	} else {
		fmt.Printf("Knowledge entry created: %s (%s, %d chunks)\n", entry.Title, entry.ID, len(entry.Chunks))
	}

	return nil
}

func KnowledgeSearchCmd() *cobra.Command {
	var (
		limit    int
		category string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long:  "Run a similarity search over active knowledge entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeSearch(outputFormat, strings.Join(args, " "), limit, category)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only search this category")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeSearch(outputFormat, query string, limit int, category string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	stack, err := newKnowledgeStack(ctx, cfg, pool, newAPIClient(cfg))
	if err != nil {
		return err
	}

	results, err := stack.service.Search(ctx, query, limit, category)
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(results))
		for i, r := range results {
			data[i] = map[string]interface{}{
				"entry":      entrySummary(r.Entry),
				"similarity": r.Similarity,
			}
			if r.BestChunk != nil {
				data[i]["best_chunk"] = r.BestChunk.Content
			}
		}
		printJSON(map[string]interface{}{"results": data})
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No matching knowledge found")
		return nil
	}
	for _, r := range results {
		fmt.Printf("  %.3f  %s: %s\n", r.Similarity, r.Entry.ID, r.Entry.Title)
		if r.BestChunk != nil {
			fmt.Printf("         %s\n", truncate(r.BestChunk.Content, 100))
		}
	}
	return nil
}

func KnowledgeListCmd() *cobra.Command {
	var includeInactive bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries",
		Long:  "List active knowledge entries, or every entry with --include-inactive",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runKnowledgeList(outputFormat, includeInactive)
		},
	}

	cmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "Include deactivated entries")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKnowledgeList(outputFormat string, includeInactive bool) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	stack, err := newKnowledgeStack(ctx, cfg, pool, newAPIClient(cfg))
	if err != nil {
		return err
	}

	entries, err := stack.service.List(ctx, includeInactive)
	if err != nil {
		return fmt.Errorf("failed to list knowledge: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(entries))
		for i, e := range entries {
			data[i] = entrySummary(e)
		}
		printJSON(map[string]interface{}{"items": data})
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No knowledge entries found")
		return nil
	}
	fmt.Println("Knowledge entries:")
	for _, e := range entries {
		state := ""
		if !e.Active {
			state = " [inactive]"
		}
		fmt.Printf("  %s: %s%s (updated: %s)\n", e.ID, e.Title, state, e.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func entrySummary(e *domain.KnowledgeEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":         e.ID,
		"title":      e.Title,
		"category":   e.Category,
		"tags":       e.Tags,
		"active":     e.Active,
		"chunks":     len(e.Chunks),
		"updated_at": e.UpdatedAt,
	}
}

func printJSON(v interface{}) {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonBytes))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
