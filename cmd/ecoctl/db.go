package main

import (
	"errors"
	"fmt"

	"eco-agent-backend/config"
	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/spf13/cobra"
)

var (
	purgeUserID      string
	purgeAnonymousID string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dao.Init(config.Cfg.Database); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("migrated"), dimStyle.Render(config.Cfg.Database.Driver))
		return nil
	},
}

var purgeOwnerCmd = &cobra.Command{
	Use:   "purge-owner",
	Short: "Delete every session, message and artifact of a user or anonymous visitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := purgeOwner()
		if err != nil {
			return err
		}
		if err := dao.Init(config.Cfg.Database); err != nil {
			return err
		}
		if err := dao.PurgeOwner(cmd.Context(), owner); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("purged"), dimStyle.Render(ownerLabel(owner)))
		return nil
	},
}

func purgeOwner() (model.Owner, error) {
	if (purgeUserID == "") == (purgeAnonymousID == "") {
		return model.Owner{}, errors.New("exactly one of --user or --anonymous is required")
	}
	return model.Owner{UserID: purgeUserID, AnonymousID: purgeAnonymousID}, nil
}

func ownerLabel(owner model.Owner) string {
	if owner.UserID != "" {
		return "user " + owner.UserID
	}
	return "anonymous " + owner.AnonymousID
}

func init() {
	purgeOwnerCmd.Flags().StringVar(&purgeUserID, "user", "", "user id")
	purgeOwnerCmd.Flags().StringVar(&purgeAnonymousID, "anonymous", "", "anonymous visitor id")
	rootCmd.AddCommand(migrateCmd, purgeOwnerCmd)
}
