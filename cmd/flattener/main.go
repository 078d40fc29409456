package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flattener/internal/config"
	"flattener/internal/constants"
	"flattener/internal/logger"
	"flattener/pkg/logging"
	"flattener/pkg/transform"
)

var (
	configFile string
)

// @title           Flattener Stage API
// @version         1.0
// @description     Admin API of the field values flattener stage: inspect and change the transform configuration and preview it on a record.

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "flattener",
		Short: "Field values flattener stage for data pipelines",
		Long:  "Flattener replaces a configured JSON object field of each record with the list of its values",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(describeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the flattener stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ctx = logging.WithServiceName(ctx, constants.ServiceName)
			log.InfowCtx(ctx, "Starting flattener stage", "stage", cfg.Transform.Stage)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				shutdownErr := app.Shutdown(context.Background())
				return errors.Join(err, shutdownErr)
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
			} else {
				runErr = nil
			}

			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
				return errors.Join(runErr, err)
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return runErr
		},
	}
}

func applyCmd() *cobra.Command {
	var (
		fieldName string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Flatten newline-delimited JSON record values",
		Long:  "Reads one JSON record value per line from --input or stdin and writes the transformed values to stdout. Failures are reported per line on stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if inputFile != "" && inputFile != "-" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			cmd.SilenceUsage = true
			return runApply(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), fieldName)
		},
	}

	cmd.Flags().StringVar(&fieldName, "field", "", "Name of the object field to flatten (required)")
	cmd.Flags().StringVar(&inputFile, "input", "", "Input file, stdin when empty or -")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func describeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the transform configuration definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd.OutOrStdout(), transform.NewFieldValuesFlattener().Config(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the definition as JSON")
	return cmd
}
