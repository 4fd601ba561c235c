package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/storage"
)

// pruneCmd clears stale price rows so they stop counting as cached data.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Removes stale price data from the cache database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := rootCmd.PersistentFlags().GetString("dbpath")
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		lock, err := utils.NewDBLock(absPath)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		db, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PruneStalePrices(context.Background(), storage.PriceMaxAge)
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d stale price rows.\n", n)

		maxAge, _ := cmd.Flags().GetDuration("max-age")
		if maxAge > 0 {
			m, err := db.PruneStaleEntities(context.Background(), maxAge)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d cached payloads older than %s.\n", m, maxAge)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Duration("max-age", 0, "Also delete cached card/ruling/set payloads older than this (0 disables)")
}
