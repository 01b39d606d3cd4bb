package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	kairos "github.com/kairosgraph/kairos"
	"github.com/kairosgraph/kairos/pkg/config"
	"github.com/kairosgraph/kairos/pkg/llm"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Exit codes.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitUsage      = 2
	exitNotFound   = 3
	exitValidation = 4
	exitBackend    = 5
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kairos",
	Short: "Kairos: bitemporal knowledge-graph engine",
	Long: `Kairos is a multi-tenant, bitemporal knowledge-graph engine built as
durable memory for AI agents. It tracks both when facts held in the world
and when the system learned them, and answers as-of/as-at temporal queries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kairos.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kairos")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// run executes the root command and maps errors to exit codes.
func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	var coreErr *types.Error
	if errors.As(err, &coreErr) {
		switch coreErr.Kind {
		case types.KindNotFound:
			return exitNotFound
		case types.KindValidation, types.KindAlreadyExists:
			return exitValidation
		case types.KindBackend, types.KindPartialDelete, types.KindPartialCommit:
			return exitBackend
		}
		return exitGeneric
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return exitBackend
	}
	var usageErr usageError
	if errors.As(err, &usageErr) {
		return exitUsage
	}
	return exitGeneric
}

// usageError marks command-line misuse.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// newCore loads config and builds the engine for a CLI invocation.
func newCore() (*kairos.Core, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	core, err := kairos.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return core, cfg, nil
}
