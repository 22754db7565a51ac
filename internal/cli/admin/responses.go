package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/replygate/internal/config"
	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/cloo-solutions/replygate/internal/repository"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/spf13/cobra"
)

func ResponsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Inspect generated responses",
		Long:  "Inspect the review queue of generated responses",
	}

	cmd.AddCommand(ResponsesPendingCmd())

	return cmd
}

func ResponsesPendingCmd() *cobra.Command {
	var (
		limit    int
		cursor   string
		priority string
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List responses awaiting review",
		Long:  "List responses in pending_review, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runResponsesPending(outputFormat, limit, cursor, domain.TicketPriority(priority))
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().StringVar(&priority, "priority", "", "Only show tickets of this priority")

	return cmd
}

func runResponsesPending(outputFormat string, limit int, cursorStr string, priority domain.TicketPriority) error {
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

	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return err
	}

	repo := repository.NewResponseRepository(pool)
	result, err := repo.ListPendingReview(ctx, service.PendingFilter{TicketPriority: priority}, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list pending responses: %w", err)
	}

	if outputFormat == "json" {
		printJSON(pagination.PageResult[*domain.AIResponse]{
			Items:   result.Items,
			Cursor:  result.NextCursor,
			HasMore: result.HasMore,
		})
		return nil
	}

	if len(result.Items) == 0 {
		fmt.Println("No responses awaiting review")
		return nil
	}
	fmt.Println("Pending review:")
	for _, r := range result.Items {
		score := "unscored"
		if r.Confidence != nil {
			score = fmt.Sprintf("%.2f", *r.Confidence)
		}
		fmt.Printf("  %s: ticket %s, confidence %s (created: %s)\n", r.ID, r.TicketID, score, r.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("      %s\n", truncate(r.ResponseText, 100))
	}
	if result.HasMore && result.NextCursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", result.NextCursor)
	}

	return nil
}
