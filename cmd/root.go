package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/cardex/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `                      _
	  ___ __ _ _ __ __| | _____  __
	 / __/ _` + "`" + ` | '__/ _` + "`" + ` |/ _ \ \/ /
	| (_| (_| | | | (_| |  __/>  <
	 \___\__,_|_|  \__,_|\___/_/\_\

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cardex",
	Short: "A multi-source card lookup resolver with aggressive caching.",
	Long: LOGO + `cardex resolves card names, database ids, ruling ids and set codes through
a cascade of backing sources: the local cache database, the official
reference dump, the remote catalog, the wiki and the commerce pricing API.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cardex.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("dbpath", "", "", "Path to the cache database (default is ~/.config/cardex/cardex.sqlite)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".cardex")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.cardex.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("catalog.baseurl", "")
	viper.SetDefault("wiki.baseurl", "")
	viper.SetDefault("commerce.baseurl", "")
	viper.SetDefault("commerce.tokenurl", "")
	viper.SetDefault("commerce.clientid", "")
	viper.SetDefault("commerce.clientsecret", "")
	viper.SetDefault("refdb.path", "")
	viper.SetDefault("locales", []string{"en"})
	viper.SetDefault("quota.limit", 20)
	viper.SetDefault("concurrency", 5)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
