// Command console is the terminal operator console for the replica sync
// backend: login, dashboard polling, conflict inspection and resolution,
// product edits and ad-hoc read-only queries.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/syncdeck/internal/apiclient"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/dashboard"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/render"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/session"
	"github.com/MarkoPoloResearchLab/syncdeck/internal/storage"
)

const (
	commandUseName          = "console"
	commandShortDescription = "Operator console for the replica sync backend"
	commandLongDescription  = "Inspect sync health, browse and resolve replica conflicts, edit products and run read-only queries against the sync backend"

	flagNameAPIBaseURL      = "api-base-url"
	flagNameStateDirectory  = "state-dir"
	flagNameFastPollSeconds = "fast-poll-seconds"
	flagNameSlowPollSeconds = "slow-poll-seconds"
	flagNameReportDays      = "report-days"
	flagNameOverviewLimit   = "overview-limit"

	flagUsageAPIBaseURL      = "base URL of the sync backend API"
	flagUsageStateDirectory  = "directory holding the credential and the local snapshot cache"
	flagUsageFastPollSeconds = "seconds between live overview refreshes in watch mode"
	flagUsageSlowPollSeconds = "seconds between daily report refreshes in watch mode"
	flagUsageReportDays      = "days of history requested from the daily report"
	flagUsageOverviewLimit   = "product matrix rows requested from the overview"

	environmentKeyAPIBaseURL      = "SYNC_API_BASE_URL"
	environmentKeyStateDirectory  = "SYNC_CONSOLE_STATE_DIR"
	environmentKeyFastPollSeconds = "SYNC_FAST_POLL_SECONDS"
	environmentKeySlowPollSeconds = "SYNC_SLOW_POLL_SECONDS"
	environmentKeyReportDays      = "SYNC_REPORT_DAYS"
	environmentKeyOverviewLimit   = "SYNC_OVERVIEW_LIMIT"

	defaultAPIBaseURL         = "http://localhost:8000"
	defaultStateDirectoryName = ".syncdeck"
	defaultFastPollSeconds    = 8
	defaultSlowPollSeconds    = 60
	defaultReportDays         = dashboard.DefaultReportDays
	defaultOverviewLimit      = dashboard.DefaultOverviewLimit

	snapshotCacheFileName = "cache.db"

	loggerCreationErrorMessage    = "logger"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	commandInitializationFailure  = "failed to configure command"

	logEventOpenSnapshotCache = "open_snapshot_cache"
)

// ConsoleConfig captures the configuration shared by every subcommand.
type ConsoleConfig struct {
	APIBaseURL      string
	StateDirectory  string
	FastPollSeconds int
	SlowPollSeconds int
	ReportDays      int
	OverviewLimit   int
}

// ConsoleApplication constructs and executes the console command tree.
type ConsoleApplication struct {
	configurationLoader *viper.Viper
}

// NewConsoleApplication creates a ConsoleApplication with default dependencies.
func NewConsoleApplication() *ConsoleApplication {
	return &ConsoleApplication{configurationLoader: viper.New()}
}

// Command builds the Cobra command tree for the console.
func (application *ConsoleApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:           commandUseName,
		Short:         commandShortDescription,
		Long:          commandLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	rootCommand.AddCommand(
		application.newLoginCommand(),
		application.newRegisterCommand(),
		application.newLogoutCommand(),
		application.newWhoamiCommand(),
		application.newDashboardCommand(),
		application.newConflictsCommand(),
		application.newConflictCommand(),
		application.newResolveCommand(),
		application.newReportCommand(),
		application.newProductsCommand(),
		application.newTopCustomersCommand(),
		application.newRunSQLCommand(),
	)

	return rootCommand, nil
}

func (application *ConsoleApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.SetDefault(environmentKeyAPIBaseURL, defaultAPIBaseURL)
	application.configurationLoader.SetDefault(environmentKeyStateDirectory, "")
	application.configurationLoader.SetDefault(environmentKeyFastPollSeconds, defaultFastPollSeconds)
	application.configurationLoader.SetDefault(environmentKeySlowPollSeconds, defaultSlowPollSeconds)
	application.configurationLoader.SetDefault(environmentKeyReportDays, defaultReportDays)
	application.configurationLoader.SetDefault(environmentKeyOverviewLimit, defaultOverviewLimit)
	application.configurationLoader.AutomaticEnv()

	persistentFlags := command.PersistentFlags()
	persistentFlags.String(flagNameAPIBaseURL, defaultAPIBaseURL, flagUsageAPIBaseURL)
	persistentFlags.String(flagNameStateDirectory, "", flagUsageStateDirectory)
	persistentFlags.Int(flagNameFastPollSeconds, defaultFastPollSeconds, flagUsageFastPollSeconds)
	persistentFlags.Int(flagNameSlowPollSeconds, defaultSlowPollSeconds, flagUsageSlowPollSeconds)
	persistentFlags.Int(flagNameReportDays, defaultReportDays, flagUsageReportDays)
	persistentFlags.Int(flagNameOverviewLimit, defaultOverviewLimit, flagUsageOverviewLimit)

	flagBindings := []struct {
		environmentKey string
		flagName       string
	}{
		{environmentKeyAPIBaseURL, flagNameAPIBaseURL},
		{environmentKeyStateDirectory, flagNameStateDirectory},
		{environmentKeyFastPollSeconds, flagNameFastPollSeconds},
		{environmentKeySlowPollSeconds, flagNameSlowPollSeconds},
		{environmentKeyReportDays, flagNameReportDays},
		{environmentKeyOverviewLimit, flagNameOverviewLimit},
	}
	for _, binding := range flagBindings {
		if bindErr := application.bindFlag(persistentFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := applyEnvironmentConfiguration(persistentFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ConsoleApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}
	return application.configurationLoader.BindPFlag(environmentKey, flag)
}

func applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}
	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}
	return nil
}

func (application *ConsoleApplication) loadConfiguration() (ConsoleConfig, error) {
	stateDirectory := strings.TrimSpace(application.configurationLoader.GetString(environmentKeyStateDirectory))
	if stateDirectory == "" {
		homeDirectory, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return ConsoleConfig{}, fmt.Errorf("resolve state directory: %w", homeErr)
		}
		stateDirectory = filepath.Join(homeDirectory, defaultStateDirectoryName)
	}

	return ConsoleConfig{
		APIBaseURL:      strings.TrimSpace(application.configurationLoader.GetString(environmentKeyAPIBaseURL)),
		StateDirectory:  stateDirectory,
		FastPollSeconds: application.configurationLoader.GetInt(environmentKeyFastPollSeconds),
		SlowPollSeconds: application.configurationLoader.GetInt(environmentKeySlowPollSeconds),
		ReportDays:      application.configurationLoader.GetInt(environmentKeyReportDays),
		OverviewLimit:   application.configurationLoader.GetInt(environmentKeyOverviewLimit),
	}, nil
}

// consoleDependencies bundles the wired components behind every subcommand.
type consoleDependencies struct {
	configuration ConsoleConfig
	logger        *zap.Logger
	guard         *session.Guard
	client        *apiclient.Client
	renderer      *render.TextRenderer
	aggregator    *dashboard.Aggregator
}

func (application *ConsoleApplication) buildDependencies(command *cobra.Command) (*consoleDependencies, error) {
	configuration, configurationErr := application.loadConfiguration()
	if configurationErr != nil {
		return nil, configurationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return nil, fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}

	credentialStore, storeErr := session.NewFileStore(configuration.StateDirectory)
	if storeErr != nil {
		return nil, storeErr
	}

	client, clientErr := apiclient.NewClient(apiclient.Config{
		BaseURL:         configuration.APIBaseURL,
		CredentialStore: credentialStore,
		Logger:          logger,
	})
	if clientErr != nil {
		return nil, clientErr
	}

	renderer := render.NewTextRenderer(command.OutOrStdout())

	aggregator, aggregatorErr := dashboard.NewAggregator(dashboard.Config{
		Backend:       client,
		Notifier:      renderer,
		Snapshots:     openSnapshotCache(configuration.StateDirectory, logger),
		Logger:        logger,
		OverviewLimit: configuration.OverviewLimit,
		ReportDays:    configuration.ReportDays,
	})
	if aggregatorErr != nil {
		return nil, aggregatorErr
	}

	return &consoleDependencies{
		configuration: configuration,
		logger:        logger,
		guard:         session.NewGuard(credentialStore, logger),
		client:        client,
		renderer:      renderer,
		aggregator:    aggregator,
	}, nil
}

// openSnapshotCache opens the local SQLite snapshot cache. The cache is an
// accelerator, not a dependency: any failure degrades to an uncached console.
func openSnapshotCache(stateDirectory string, logger *zap.Logger) dashboard.SnapshotStore {
	if mkdirErr := os.MkdirAll(stateDirectory, 0o700); mkdirErr != nil {
		logger.Warn(logEventOpenSnapshotCache, zap.Error(mkdirErr))
		return nil
	}
	database, openErr := storage.OpenDatabase(storage.Config{
		DriverName:     storage.DriverNameSQLite,
		DataSourceName: filepath.Join(stateDirectory, snapshotCacheFileName),
	})
	if openErr != nil {
		logger.Warn(logEventOpenSnapshotCache, zap.Error(openErr))
		return nil
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Warn(logEventOpenSnapshotCache, zap.Error(migrateErr))
		return nil
	}
	return storage.NewSnapshotRepository(database)
}

func main() {
	application := NewConsoleApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}
	if executeErr := rootCommand.Execute(); executeErr != nil {
		fmt.Fprintln(os.Stderr, executeErr)
		os.Exit(1)
	}
}
