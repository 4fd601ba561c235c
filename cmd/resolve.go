package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/manifest"
	"github.com/sw33tLie/cardex/pkg/nameindex"
	"github.com/sw33tLie/cardex/pkg/quota"
	"github.com/sw33tLie/cardex/pkg/refdb"
	"github.com/sw33tLie/cardex/pkg/resolver"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/sources/cachedb"
	"github.com/sw33tLie/cardex/pkg/sources/catalog"
	"github.com/sw33tLie/cardex/pkg/sources/commerce"
	"github.com/sw33tLie/cardex/pkg/sources/official"
	"github.com/sw33tLie/cardex/pkg/sources/wiki"
	"github.com/sw33tLie/cardex/pkg/storage"
	"github.com/sw33tLie/cardex/pkg/termcache"
	"github.com/sw33tLie/cardex/pkg/whttp"
)

// resolveCmd resolves one or more lookup tokens through the full pipeline.
var resolveCmd = &cobra.Command{
	Use:   "resolve [tokens...]",
	Short: "Resolve card names, database ids, ruling ids or set codes.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		locale, _ := cmd.Flags().GetString("locale")
		if locale == "" {
			if configured := viper.GetStringSlice("locales"); len(configured) > 0 {
				locale = configured[0]
			} else {
				locale = "en"
			}
		}
		facetStr, _ := cmd.Flags().GetString("facet")
		officialOnly, _ := cmd.Flags().GetBool("official")
		rulingMode, _ := cmd.Flags().GetBool("rulings")

		facet, ok := card.ParseFacet(facetStr)
		if !ok {
			return fmt.Errorf("unknown facet %q", facetStr)
		}

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

		store, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer store.Close()

		engine, err := buildEngine(store)
		if err != nil {
			return err
		}

		q := search.NewQuery(locale)
		q.OfficialOnly = officialOnly
		q.RulingMode = rulingMode
		for _, token := range args {
			q.Add(token, locale, facet)
		}

		report, err := engine.Resolve(context.Background(), "cli", q)
		if err != nil {
			return err
		}
		fmt.Print(report.String())
		return nil
	},
}

// buildEngine wires the shared caches, clients and the ordered connector
// list from viper config.
func buildEngine(store *storage.DB) (*resolver.Engine, error) {
	concurrency := viper.GetInt("concurrency")

	catalogHTTP := whttp.NewClient(whttp.Options{})
	catalogClient := catalog.NewClient(catalogHTTP, viper.GetString("catalog.baseurl"))

	index := nameindex.New(catalogClient, store)
	invalidator := manifest.New(store, catalogClient, index)
	catalogClient.OnRevision(invalidator)

	commerceHTTP := whttp.NewClient(whttp.Options{
		TokenURL:     viper.GetString("commerce.tokenurl"),
		ClientID:     viper.GetString("commerce.clientid"),
		ClientSecret: viper.GetString("commerce.clientsecret"),
	})
	wikiHTTP := whttp.NewClient(whttp.Options{})

	steps := []sources.Connector{
		cachedb.New(store),
		commerce.New(commerceHTTP, viper.GetString("commerce.baseurl"), store, concurrency),
	}

	if refPath := viper.GetString("refdb.path"); refPath != "" {
		ref, err := refdb.Open(refPath)
		if err != nil {
			return nil, fmt.Errorf("could not open reference database: %w", err)
		}
		steps = append(steps, official.New(ref))
	} else {
		utils.Log.Debug("no reference database configured, skipping official source")
	}

	steps = append(steps,
		catalog.New(catalogClient, index, store, concurrency),
		wiki.New(wikiHTTP, viper.GetString("wiki.baseurl"), concurrency),
	)

	cache := termcache.New(termcache.DefaultTTL)
	cache.Start(termcache.DefaultSweepInterval)

	return resolver.New(resolver.Options{
		Steps: steps,
		Cache: cache,
		Quota: quota.New(viper.GetInt("quota.limit"), quota.DefaultWindow),
	}), nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringP("locale", "L", "", "Locale for names, effects and dates (default from config key locales)")
	resolveCmd.Flags().StringP("facet", "f", "info", "Requested facet: info, art, date, price, faq, qa, ruling")
	resolveCmd.Flags().BoolP("official", "o", false, "Only consult official sources")
	resolveCmd.Flags().BoolP("rulings", "r", false, "Treat tokens as ruling ids")
}
