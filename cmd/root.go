package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/config"
	_ "github.com/sergev/ti99disk/pc99"
)

var (
	configPath string
	verbose    bool
	conf       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ti99disk",
	Short: "A CLI program which works with TI-99/4A floppy disk images",
	Long: `The ti99disk tool inspects, converts and formats floppy disk images
of the TI-99/4A home computer. Sector-dump images (PC99) and HxC Floppy
Emulator images (HFE) are supported.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		conf, err = config.Initialize(configPath)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
		}
		log.SetLevel(conf.Level())
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default ~/.ti99disk)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug messages")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
