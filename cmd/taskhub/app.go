package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/taskflow-hub/realtime/internal/config"
	"github.com/taskflow-hub/realtime/internal/logging"
)

// app carries state shared by every command.
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	log        zerolog.Logger
	configFile string
}

func newApp() *app {
	return &app{
		v:   config.New(),
		log: zerolog.Nop(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "taskhub",
		Short:   "Realtime task collaboration client and development hub",
		Version: version,
		Long: `taskhub connects to a realtime collaboration hub and prints the
events it delivers: task updates, comments, notifications, presence and
collaboration signals. It can also run a local development hub that speaks
the same protocol, and read back the event journal a client recorded.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is ./.taskhub.yaml or $HOME/.taskhub.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: console or json")
	root.PersistentFlags().Bool("no-color", false, "disable colored log output")
	a.bind("log.level", root.PersistentFlags().Lookup("log-level"))
	a.bind("log.format", root.PersistentFlags().Lookup("log-format"))
	a.bind("log.no_color", root.PersistentFlags().Lookup("no-color"))

	root.SetVersionTemplate("taskhub {{.Version}}\n")

	root.AddCommand(a.listenCommand())
	root.AddCommand(a.serveCommand())
	root.AddCommand(a.historyCommand())
	return root
}

// setup loads configuration once flags are parsed and builds the logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	config.LoadEnvFiles()

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		NoColor: cfg.Log.NoColor,
	})
	if cfg.ConfigFile != "" {
		a.log.Debug().Str("file", cfg.ConfigFile).Msg("Loaded config file")
	}
	return nil
}

// bind ties a flag to a config key; an unset flag keeps the file and
// environment value.
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}
