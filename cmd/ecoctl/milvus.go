package main

import (
	"context"
	"fmt"
	"time"

	"eco-agent-backend/config"
	"eco-agent-backend/service/rag"

	"github.com/spf13/cobra"
)

var milvusSchemaCmd = &cobra.Command{
	Use:   "milvus-schema",
	Short: "Create the Milvus collection used by the milvus rag backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		cfg := config.Cfg
		index, err := rag.NewMilvusIndex(ctx, cfg.Milvus)
		if err != nil {
			return err
		}
		defer index.Close(context.Background())

		created, err := index.EnsureCollection(ctx, cfg.Model.EmbeddingDimensions)
		if err != nil {
			return err
		}
		status := "exists"
		if created {
			status = "created"
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(status), dimStyle.Render(cfg.Milvus.Collection))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(milvusSchemaCmd)
}
