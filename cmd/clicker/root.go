package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/config"
	"github.com/polzovatel/connect-clicker/internal/driver"
	"github.com/polzovatel/connect-clicker/internal/logging"
)

type app struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	cfgFile string
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "clicker",
		Short:         "Click a labelled button across paginated listing pages.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalid, err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./clicker.yaml)")
	pf.String(config.KeyButtonLabel, config.DefaultButtonLabel, "Exact accessible name of the button to click")
	pf.String(config.KeyLogFile, config.DefaultLogFile, "Log file path")
	pf.String(config.KeyLogLevel, config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	pf.Float64(config.KeyNavTimeout, config.DefaultNavTimeout, "Timeout in seconds for each page navigation")
	pf.Int(config.KeyNavRetries, config.DefaultNavRetries, "Navigation attempts before giving up")

	root.AddCommand(a.interactiveCmd(), a.attachCmd())
	return root
}

func (a *app) interactiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Launch a persistent browser and click one button at a time after confirmation.",
		Args:  cobra.NoArgs,
		RunE:  a.runInteractive,
	}
	f := cmd.Flags()
	f.String(config.KeyStartURL, "", "Starting listing URL (optional with --use-open-page)")
	f.Float64(config.KeyTimeout, config.DefaultTimeout, "Seconds to wait for a post-click UI change")
	f.String(config.KeyUserDataDir, config.DefaultUserDataDir, "Persistent browser profile directory")
	f.String(config.KeyScreenshotDir, config.DefaultScreenshotDir, "Directory for click screenshots")
	f.Float64(config.KeyMinDelay, config.DefaultMinDelay, "Minimum delay in seconds after each click")
	f.Float64(config.KeyMaxDelay, config.DefaultMaxDelay, "Maximum delay in seconds after each click")
	f.Bool(config.KeyUseOpenPage, false, "Use an already open tab instead of navigating to --start-url")
	f.String(config.KeyChannel, config.DefaultChannel, "Browser channel: chromium, chrome or msedge")
	f.String(config.KeyConnectedLabel, config.DefaultConnectedLabel, "Label of the button shown after a successful click")
	return cmd
}

func (a *app) attachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach to a running Chrome over CDP and click every matching button.",
		Args:  cobra.NoArgs,
		RunE:  a.runAttach,
	}
	f := cmd.Flags()
	f.String(config.KeyCDPURL, config.DefaultCDPURL, "Chrome remote debugging URL")
	f.String(config.KeyURLContains, "", "Substring used to pick the working tab")
	f.Float64(config.KeyMinDelay, config.DefaultAttachDelay, "Minimum delay in seconds between actions")
	f.Float64(config.KeyMaxDelay, config.DefaultAttachDelay, "Maximum delay in seconds between actions")
	f.Int(config.KeyMaxClicks, 0, "Stop after N clicks (0 means no limit)")
	f.Int(config.KeyMaxPages, 0, "Stop after N pages (0 means no limit)")
	f.String(config.KeySubmitLabel, config.DefaultSubmitLabel, "Exact accessible name of the modal submit button")
	f.Float64(config.KeyModalTimeout, config.DefaultModalTimeout, "Seconds to wait for the invite modal")
	f.Float64(config.KeyPageSettle, config.DefaultPageSettle, "Seconds to keep looking before declaring a page empty")
	f.Bool(config.KeyNoAutoNextPage, false, "Disable automatic pagination")
	return cmd
}

func (a *app) load(cmd *cobra.Command, mode config.Mode) (config.Config, error) {
	v := config.NewViper(mode)
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config.Config{}, fmt.Errorf("bind flags: %w", err)
	}
	if err := config.ReadFile(v, a.cfgFile); err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return config.Load(v, mode)
}

func (a *app) logger(cfg config.Config) (zerolog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(logging.Options{File: cfg.LogFile, Console: a.errOut, Level: cfg.LogLevel})
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return logger.With().Str("mode", string(cfg.Mode)).Logger(), closer, nil
}

func (a *app) runInteractive(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd, config.Interactive)
	if err != nil {
		return err
	}
	logger, closer, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Msg("starting interactive helper")
	if config.InOneDrive(cfg.UserDataDir) {
		logger.Warn().Str("profile", cfg.UserDataDir).
			Msg("user data dir is inside OneDrive; if browser launch is unstable, use a local path")
	}
	if f, ok := a.in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		logger.Warn().Msg("stdin is not a terminal; answers are read from piped input")
	}

	ctx := cmd.Context()
	launcher, err := browser.NewLauncher(logger.With().Str("comp", "browser").Logger())
	if err != nil {
		return err
	}
	defer launcher.Close()

	session, err := launcher.LaunchPersistent(ctx, browser.PersistentOptions{UserDataDir: cfg.UserDataDir, Channel: cfg.Channel})
	if err != nil {
		return err
	}
	defer func() {
		logger.Info().Msg("closing browser context")
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("close browser context")
		}
	}()

	d := driver.NewInteractive(cfg, driver.TerminalPrompt(a.in, a.out), a.out, logger.With().Str("comp", "interactive").Logger())
	st, err := d.Run(ctx, session)
	return a.finish(logger, st, err)
}

func (a *app) runAttach(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load(cmd, config.Attach)
	if err != nil {
		return err
	}
	logger, closer, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	launcher, err := browser.NewLauncher(logger.With().Str("comp", "browser").Logger())
	if err != nil {
		return err
	}
	defer launcher.Close()

	session, err := launcher.Attach(ctx, cfg.CDPURL)
	if err != nil {
		fmt.Fprintln(a.out, "Start Chrome with remote debugging enabled, then retry.")
		return err
	}
	defer session.Close()

	page, err := driver.AttachedPage(session, cfg.URLContains)
	if err != nil {
		return err
	}

	d := driver.NewAutonomous(cfg, a.out, logger.With().Str("comp", "attach").Logger())
	st, err := d.Run(ctx, page)
	return a.finish(logger, st, err)
}

func (a *app) finish(logger zerolog.Logger, st driver.RunState, err error) error {
	fmt.Fprintln(a.out, st.Summary())
	logger.Info().Object("run", st).Msg("helper finished")
	if err != nil {
		return err
	}
	if st.Aborted {
		return fmt.Errorf("%w: %s", errAborted, st.StopReason)
	}
	return nil
}
