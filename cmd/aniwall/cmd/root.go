package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/internal/api"
	"go-aniwall/internal/config"
	"go-aniwall/internal/models"
)

var (
	// cfgFile holds the path to the config file specified by the user
	cfgFile string

	logLevel  string
	logFormat string

	// logApiFlag holds the value of the --log-api flag
	logApiFlag bool

	screenWidthFlag     int
	screenHeightFlag    int
	wallpapersDirFlag   string
	cacheDirFlag        string
	setWallpaperCmdFlag string
)

// globalConfig holds the loaded configuration with flag overrides applied
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "aniwall",
	Short: "Curate a wallpaper collection from an anime image board",
	Long: `aniwall fetches wallpaper candidates from a konachan-style catalog,
downloads them, optionally smart-crops them to your screen and lets you
sort each one into liked, disliked or borked while it is shown as your wallpaper.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		api.CloseAllLoggingTransports()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default: <user config dir>/aniwall/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log in the cache directory (overrides config)")
	rootCmd.PersistentFlags().IntVar(&screenWidthFlag, "screen-width", 0, "Screen width in pixels (overrides config and probing)")
	rootCmd.PersistentFlags().IntVar(&screenHeightFlag, "screen-height", 0, "Screen height in pixels (overrides config and probing)")
	rootCmd.PersistentFlags().StringVar(&wallpapersDirFlag, "wallpapers-dir", "", "Directory holding wallpapers and their records (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Directory for cached catalog queries (overrides config)")
	rootCmd.PersistentFlags().StringVar(&setWallpaperCmdFlag, "set-wallpaper-command", "", "Command template used to apply a wallpaper, {} is replaced by the path (overrides config)")
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig loads the configuration, applies flag overrides, creates the
// working directories and sets up the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}
	if cmd.Flags().Changed("screen-width") {
		globalConfig.ScreenWidth = screenWidthFlag
	}
	if cmd.Flags().Changed("screen-height") {
		globalConfig.ScreenHeight = screenHeightFlag
	}
	if wallpapersDirFlag != "" {
		globalConfig.WallpapersDir = wallpapersDirFlag
		log.Debugf("Overriding WallpapersDir based on --wallpapers-dir flag: %s", wallpapersDirFlag)
	}
	if cacheDirFlag != "" {
		globalConfig.CacheDir = cacheDirFlag
		log.Debugf("Overriding CacheDir based on --cache-dir flag: %s", cacheDirFlag)
	}
	if setWallpaperCmdFlag != "" {
		globalConfig.SetWallpaperCommand = setWallpaperCmdFlag
	}

	if err := config.EnsureDirs(globalConfig); err != nil {
		return err
	}

	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		logFilePath := filepath.Join(globalConfig.CacheDir, "api.log")
		log.Infof("API logging to file: %s", logFilePath)
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}
	return nil
}
