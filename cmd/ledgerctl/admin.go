package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/models"
)

var reminderThreshold string

var participantCmd = &cobra.Command{
	Use:   "participant",
	Short: "Manage participants",
}

var participantAddCmd = &cobra.Command{
	Use:   "add <id> <display-name>",
	Args:  cobra.ExactArgs(2),
	Short: "Register a participant",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		p := &models.Participant{ID: args[0], DisplayName: args[1], CreatedAt: clk.Now()}
		if err := store.CreateParticipant(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	},
}

var participantRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Delete a participant who no ledger record references",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.DeleteParticipant(cmd.Context(), args[0])
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups and membership",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <id> <name> [member...]",
	Args:  cobra.MinimumNArgs(2),
	Short: "Create a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := &models.Group{ID: args[0], Name: args[1], Members: args[2:], CreatedAt: clk.Now()}
		if reminderThreshold != "" {
			threshold, err := decimal.NewFromString(reminderThreshold)
			if err != nil {
				return fmt.Errorf("invalid --reminder-threshold: %w", err)
			}
			g.ReminderThreshold = threshold
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.CreateGroup(cmd.Context(), g); err != nil {
			return err
		}
		fmt.Println(g.ID)
		return nil
	},
}

var groupJoinCmd = &cobra.Command{
	Use:   "join <group-id> <participant-id>",
	Args:  cobra.ExactArgs(2),
	Short: "Add a participant to a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.AddMember(cmd.Context(), args[0], args[1])
	},
}

var groupLeaveCmd = &cobra.Command{
	Use:   "leave <group-id> <participant-id>",
	Args:  cobra.ExactArgs(2),
	Short: "Remove a participant from a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.RemoveMember(cmd.Context(), args[0], args[1])
	},
}

func init() {
	participantCmd.AddCommand(participantAddCmd, participantRemoveCmd)
	groupCmd.AddCommand(groupCreateCmd, groupJoinCmd, groupLeaveCmd)
	rootCmd.AddCommand(participantCmd, groupCmd)

	groupCreateCmd.Flags().StringVar(&reminderThreshold, "reminder-threshold", "", "Balance below which members are reminded (default -100)")
}
