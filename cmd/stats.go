package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the cached entities in the database.",
	Long:  "Prints statistics about the cached entities in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := rootCmd.PersistentFlags().GetString("dbpath")
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}

		db, err := storage.Open(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("database file not found: %s", absPath)
			}
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "KIND\tCOUNT\t")
		fmt.Fprintf(w, "cards\t%d\t\n", stats.Cards)
		fmt.Fprintf(w, "faqs\t%d\t\n", stats.FAQs)
		fmt.Fprintf(w, "rulings\t%d\t\n", stats.Rulings)
		fmt.Fprintf(w, "sets\t%d\t\n", stats.Sets)
		fmt.Fprintf(w, "products\t%d\t\n", stats.Products)
		fmt.Fprintf(w, "priced products\t%d\t\n", stats.Priced)
		w.Flush()

		fmt.Printf("\nmanifest revision: %d\n", stats.Revision)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
