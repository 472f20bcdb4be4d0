package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/julien-sobczak/libreoffice-installer/internal/acquire"
	"github.com/julien-sobczak/libreoffice-installer/internal/config"
	"github.com/julien-sobczak/libreoffice-installer/internal/installer"
	"github.com/julien-sobczak/libreoffice-installer/internal/logging"
	"github.com/spf13/cobra"
)

// exitError carries the process exit code out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type options struct {
	configFile string
	assumeYes  bool
	dir        string
	lang       string
	keyring    string
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "lo-install",
		Short:         "Download and install the latest LibreOffice release on Debian/Ubuntu",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := make(map[string]interface{})
			if cmd.Flags().Changed("yes") {
				overrides["assume_yes"] = opts.assumeYes
			}
			if cmd.Flags().Changed("dir") {
				overrides["download_dir"] = opts.dir
			}
			if cmd.Flags().Changed("lang") {
				overrides["lang"] = opts.lang
			}
			if cmd.Flags().Changed("keyring") {
				overrides["keyring"] = opts.keyring
			}

			cfg, err := config.Load(config.LoadOptions{
				ConfigFile: opts.configFile,
				Overrides:  overrides,
			})
			if err != nil {
				logging.NewConsole(stdout).Fail("Configuration error:", err)
				return &exitError{code: 1}
			}
			return run(cmd.Context(), cfg, stdin, stdout)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "configuration file")
	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "download directory (default \"LibreOffice\" next to the executable)")
	cmd.Flags().StringVar(&opts.lang, "lang", config.DefaultLang, "language of the help and language packs")
	cmd.Flags().StringVar(&opts.keyring, "keyring", "", "verify archive signatures with this OpenPGP keyring")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) (err error) {
	console := logging.NewConsole(stdout)

	logger, logFile, err := logging.Open(cfg.LogFile)
	if err != nil {
		console.Fail("Error:", err)
		return &exitError{code: 1}
	}
	defer logFile.Close()

	defer func() {
		if r := recover(); r != nil {
			console.Fail("Unexpected error:", fmt.Errorf("%v", r))
			logging.Critical(logger, "Uncaught error", "err", r)
			err = &exitError{code: 1}
		}
	}()

	opts := []installer.Option{
		installer.WithInput(stdin),
		installer.WithConsole(console),
		installer.WithLogger(logger),
	}
	if cfg.Keyring != "" {
		verifier, err := acquire.LoadKeyring(cfg.Keyring)
		if err != nil {
			console.Fail("Error:", err)
			logging.Critical(logger, "Unable to load keyring", "err", err)
			return &exitError{code: 1}
		}
		opts = append(opts, installer.WithVerifier(verifier))
	}

	_, err = installer.NewPipeline(cfg, opts...).Run(ctx)
	if ctx.Err() != nil {
		console.Warn("\nInstallation interrupted by the user")
		logger.Warn("Installation interrupted", "err", ctx.Err())
		return &exitError{code: 1}
	}
	if err != nil {
		logFailure(logger, err)
		return &exitError{code: 1}
	}
	return nil
}

func logFailure(logger *log.Logger, err error) {
	logging.Critical(logger, "Installation failed", "kind", installer.Classify(err), "err", err)
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second signal terminates the process right away
		<-ctx.Done()
		stop()
	}()

	cmd := newRootCommand(os.Stdin, os.Stdout)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		// Flag parsing errors
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
