package main

import (
	"fmt"

	"github.com/raine/listing-draft-bot/config"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List drafts made with the CLI, newest first",
	RunE:  runHistory,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the CLI draft history",
	RunE:  runClear,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of drafts to show (0 for all)")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, history, err := openHistory(config.FromEnv())
	if err != nil {
		return err
	}
	defer store.Close()

	drafts, err := history.LoadAll()
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(drafts) > historyLimit {
		drafts = drafts[:historyLimit]
	}
	if len(drafts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No drafts yet.")
		return nil
	}
	for _, d := range drafts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-50s  %s\n",
			d.GeneratedDate.Format("2006-01-02 15:04"), d.SuggestedTitle, d.SuggestedPriceRange)
	}
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	store, history, err := openHistory(config.FromEnv())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := history.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Draft history cleared.")
	return nil
}
