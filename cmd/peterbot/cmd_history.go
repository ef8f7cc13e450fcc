package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"peterbot/internal/types"
)

// historyCmd inspects persisted conversations.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect persisted conversations",
	Long: `Conversations are stored under the bot's reply message, as <channel>:<message>.

Subcommands:
  show   - Print the turns stored under an anchor
  clear  - Delete the conversation stored under an anchor`,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <anchor>",
	Short: "Print the turns stored under an anchor",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <anchor>",
	Short: "Delete the conversation stored under an anchor",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	anchor := types.Anchor(args[0])
	turns, err := store.Get(cmd.Context(), anchor)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", anchor, err)
	}

	out := cmd.OutOrStdout()
	if len(turns) == 0 {
		fmt.Fprintf(out, "No conversation stored under %s.\n", anchor)
		return nil
	}

	fmt.Fprintf(out, "Conversation %s\n", anchor)
	fmt.Fprintln(out, strings.Repeat("─", 50))
	for _, t := range turns {
		fmt.Fprintf(out, "[%s] %s\n", t.Role, t.Text)
	}
	fmt.Fprintln(out, strings.Repeat("─", 50))
	fmt.Fprintf(out, "Total: %d turns\n", len(turns))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	anchor := types.Anchor(args[0])
	if err := store.Delete(cmd.Context(), anchor); err != nil {
		return fmt.Errorf("failed to delete %s: %w", anchor, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s.\n", anchor)
	return nil
}
