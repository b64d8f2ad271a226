package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pg-sharding/partmig/app"
	"github.com/pg-sharding/partmig/pkg/config"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pkg/errors"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	daemonize bool
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use:   "partmig-member run --config `path-to-config`",
	Short: "partmig-member",
	Long:  "Partition migration cluster member",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/partmig/member.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "overrides log_level from config")
	rootCmd.PersistentFlags().BoolVarP(&prettyLog, "pretty-log", "P", false, "write logs in human readable form")
	runCmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "daemonize the member")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(demoCmd)
}

func applyLogging(cfg *config.Member) error {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if prettyLog {
		cfg.PrettyLog = true
	}
	migrlog.ReloadLogger(cfg.LogFile, cfg.PrettyLog)
	if cfg.LogFile == "" && cfg.PrettyLog {
		migrlog.Zero = migrlog.NewZeroLogger("", cfg.LogLevel, true)
	}
	return migrlog.UpdateZeroLogLevel(cfg.LogLevel)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run member",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgStr, err := config.LoadMemberCfg(cfgPath)
		if err != nil {
			return err
		}
		cfg := config.MemberConfig()

		if daemonize || cfg.Daemonize {
			cntxt := &daemon.Context{
				PidFileName: cfg.PidFile,
				PidFilePerm: 0644,
				LogFileName: cfg.LogFile,
				LogFilePerm: 0640,
				WorkDir:     "./",
				Umask:       027,
				Args:        os.Args,
			}

			d, err := cntxt.Reborn()
			if err != nil {
				return errors.Wrap(err, "unable to daemonize")
			}
			if d != nil {
				return nil
			}
			defer func() {
				if err := cntxt.Release(); err != nil {
					migrlog.Zero.Error().Err(err).Msg("failed to release pid file")
				}
			}()
		}

		if err := applyLogging(cfg); err != nil {
			return err
		}
		migrlog.Zero.Info().Msg("Running config: " + cfgStr)

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			for {
				s := <-sigs
				migrlog.Zero.Info().Str("signal", s.String()).Msg("received signal")

				switch s {
				case syscall.SIGHUP:
					if _, err := config.LoadMemberCfg(cfgPath); err != nil {
						migrlog.Zero.Error().Err(err).Msg("failed to reload config")
						continue
					}
					if err := migrlog.UpdateZeroLogLevel(config.MemberConfig().LogLevel); err != nil {
						migrlog.Zero.Error().Err(err).Msg("failed to update log level")
					}
				case syscall.SIGINT, syscall.SIGTERM:
					cancelCtx()
					return
				}
			}
		}()

		memberCfg := *cfg
		member, err := app.NewApp(&memberCfg)
		if err != nil {
			return errors.Wrap(err, "member failed to start")
		}
		return member.Run(ctx)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		migrlog.Zero.Fatal().Err(err).Msg("")
	}
}

func main() {
	Execute()
}
