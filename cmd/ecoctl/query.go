package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/service/llm"
	"eco-agent-backend/service/rag"

	"github.com/spf13/cobra"
)

var queryTopK int

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Embed a query and print the nearest document pages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		cfg := config.Cfg
		embedder, err := rag.NewEmbedder(llm.NewOpenAIClient(cfg.Model), cfg.Model)
		if err != nil {
			return err
		}
		index, err := rag.NewIndex(ctx, cfg)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		vector, err := embedder.EmbedQuery(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		chunks, err := index.Query(ctx, vector, queryTopK)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d results for %q", len(chunks), query)))
		for i, c := range chunks {
			fmt.Fprintf(out, "%2d. %s %s\n", i+1,
				titleStyle.Render(fmt.Sprintf("%s p.%d", c.Title, c.Page)),
				dimStyle.Render(fmt.Sprintf("distance=%.4f key=%s", c.Distance, c.Key)))
			if snippet := strings.TrimSpace(c.Text); snippet != "" {
				fmt.Fprintf(out, "    %s\n", truncate(snippet, 200))
			}
		}
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 5, "number of results")
	rootCmd.AddCommand(queryCmd)
}
