// Command consultd is the AI-consultation daemon's entrypoint. The real
// binary is a multi-mode CLI (installer, uninstaller, config printer,
// legacy proxy, default proxy client); this build implements the daemon
// mode plus the small --uninstall and --config operations, and reports
// the others as out of scope (spec.md line 223).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	flagDaemon    bool
	flagInstall   bool
	flagUninstall bool
	flagConfig    bool
	flagLegacy    bool
	flagPort      int
	flagLogLevel  string
	flagLogFormat string
	flagEmbedURL  string
	flagStaticDir string
)

var rootCmd = &cobra.Command{
	Use:          "consultd",
	Short:        "AI consultation daemon: single-host DeepSeek/GPT consultation service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVar(&flagDaemon, "daemon", false, "run the consultation daemon in the foreground")
	rootCmd.Flags().BoolVar(&flagInstall, "install", false, "install IDE integration (external installer, out of scope)")
	rootCmd.Flags().BoolVar(&flagUninstall, "uninstall", false, "stop a running daemon and remove its lock file")
	rootCmd.Flags().BoolVar(&flagConfig, "config", false, "print the effective daemon config and exit")
	rootCmd.Flags().BoolVar(&flagLegacy, "legacy", false, "deprecated legacy proxy mode")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "listen port override (0 = auto-pick starting at 3456)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagLogFormat, "log-format", "text", "log format: text, json")
	rootCmd.Flags().StringVar(&flagEmbedURL, "embed-url", "http://127.0.0.1:7999/embed", "embedding service URL for the RAG pipeline")
	rootCmd.Flags().StringVar(&flagStaticDir, "static-dir", "", "directory of prebuilt web UI assets to serve (empty disables static serving)")

	viper.SetEnvPrefix("CONSULTD")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.Flags().Lookup("log-format"))
	_ = viper.BindPFlag("embed-url", rootCmd.Flags().Lookup("embed-url"))
	_ = viper.BindPFlag("static-dir", rootCmd.Flags().Lookup("static-dir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	switch {
	case flagDaemon:
		return runDaemon()
	case flagUninstall:
		return runUninstall()
	case flagConfig:
		return runPrintConfig()
	case flagInstall:
		return fmt.Errorf("--install is handled by the external multi-editor installer, not this binary")
	case flagLegacy:
		return fmt.Errorf("--legacy proxy mode is deprecated and not implemented by this binary")
	default:
		return fmt.Errorf("default proxy-client mode is out of scope for this binary; run with --daemon")
	}
}

func newLogger() *logrus.Entry {
	log := logrus.New()
	log.Out = os.Stderr

	if viper.GetString("log-format") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return logrus.NewEntry(log)
}
