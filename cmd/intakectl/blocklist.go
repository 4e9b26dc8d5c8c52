package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/identity"
	"github.com/ashureev/intake-bot/internal/store"
)

func validTarget(id string) error {
	if !identity.IsValidUserID(id) {
		return fmt.Errorf("invalid user id %q", id)
	}
	admins := identity.NewAdmins(strings.Split(envOr("ADMIN_IDS", ""), ","))
	if admins.Contains(id) {
		return fmt.Errorf("user %s is an admin", id)
	}
	return nil
}

func newBlockCmd(a *app) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "block <user-id>",
		Short: "Block a user from starting new applications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := validTarget(id); err != nil {
				return err
			}
			blocks, err := store.OpenBlocklist(cmd.Context(), a.blockedFile, a.logger(cmd))
			if err != nil {
				return err
			}
			if _, err := blocks.Block(cmd.Context(), id, by); err != nil {
				if errors.Is(err, store.ErrAlreadyBlocked) {
					fmt.Fprintf(cmd.OutOrStdout(), "User %s is already blocked\n", id)
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "intakectl", "Who is recorded as blocking the user")
	return cmd
}

func newUnblockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <user-id>",
		Short: "Remove a user from the block list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			blocks, err := store.OpenBlocklist(cmd.Context(), a.blockedFile, a.logger(cmd))
			if err != nil {
				return err
			}
			if err := blocks.Unblock(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unblocked %s\n", id)
			return nil
		},
	}
}

func newBlockedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List blocked users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			blocks, err := store.OpenBlocklist(cmd.Context(), a.blockedFile, a.logger(cmd))
			if err != nil {
				return err
			}
			entries := blocks.List()
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if entries == nil {
					entries = []domain.BlockEntry{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No blocked users")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%-20s %s  by %s\n", e.UserID, e.BlockedAt.Local().Format("02.01.2006 15:04"), e.BlockedBy)
			}
			return nil
		},
	}
}
