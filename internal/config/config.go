// Package config holds the immutable run configuration for both drivers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid marks a configuration rejected by validation.
var ErrInvalid = errors.New("invalid configuration")

// Mode selects which driver the configuration is for.
type Mode string

const (
	Interactive Mode = "interactive"
	Attach      Mode = "attach"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyButtonLabel    = "button-label"
	KeyConnectedLabel = "connected-label"
	KeyLogFile        = "log-file"
	KeyLogLevel       = "log-level"
	KeyMinDelay       = "min-delay-seconds"
	KeyMaxDelay       = "max-delay-seconds"
	KeyNavTimeout     = "navigation-timeout-seconds"
	KeyNavRetries     = "navigation-retries"

	KeyStartURL      = "start-url"
	KeyTimeout       = "timeout-seconds"
	KeyUserDataDir   = "user-data-dir"
	KeyScreenshotDir = "screenshot-dir"
	KeyUseOpenPage   = "use-open-page"
	KeyChannel       = "browser-channel"

	KeyCDPURL         = "cdp-url"
	KeyURLContains    = "url-contains"
	KeyMaxClicks      = "max-clicks"
	KeyMaxPages       = "max-pages"
	KeySubmitLabel    = "send-request-label"
	KeyModalTimeout   = "modal-timeout-seconds"
	KeyPageSettle     = "page-settle-seconds"
	KeyNoAutoNextPage = "no-auto-next-page"
)

// Defaults.
const (
	DefaultButtonLabel    = "Connect"
	DefaultConnectedLabel = "Connected"
	DefaultLogFile        = "./logs/run.log"
	DefaultLogLevel       = "info"
	DefaultMinDelay       = 2.0
	DefaultMaxDelay       = 4.0
	DefaultAttachDelay    = 2.0
	DefaultNavTimeout     = 15.0
	DefaultNavRetries     = 3
	DefaultTimeout        = 15.0
	DefaultUserDataDir    = "./user_data"
	DefaultScreenshotDir  = "./screenshots"
	DefaultChannel        = "chromium"
	DefaultCDPURL         = "http://127.0.0.1:9222"
	DefaultSubmitLabel    = "Send Request"
	DefaultModalTimeout   = 8.0
	DefaultPageSettle     = 6.0
)

// Channels accepted for a persistent launch.
var Channels = []string{"chromium", "chrome", "msedge"}

// Config is read once at startup and never modified afterwards.
type Config struct {
	Mode Mode

	ButtonLabel    string
	ConnectedLabel string
	LogFile        string
	LogLevel       string
	MinDelay       time.Duration
	MaxDelay       time.Duration
	NavTimeout     time.Duration
	NavRetries     int

	// interactive
	StartURL      string
	Timeout       time.Duration
	UserDataDir   string
	ScreenshotDir string
	UseOpenPage   bool
	Channel       string

	// attach
	CDPURL         string
	URLContains    string
	MaxClicks      int
	MaxPages       int
	SubmitLabel    string
	ModalTimeout   time.Duration
	PageSettle     time.Duration
	NoAutoNextPage bool
}

// SetDefaults registers the defaults for mode on v.
func SetDefaults(v *viper.Viper, mode Mode) {
	v.SetDefault(KeyButtonLabel, DefaultButtonLabel)
	v.SetDefault(KeyConnectedLabel, DefaultConnectedLabel)
	v.SetDefault(KeyLogFile, DefaultLogFile)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyNavTimeout, DefaultNavTimeout)
	v.SetDefault(KeyNavRetries, DefaultNavRetries)

	switch mode {
	case Attach:
		v.SetDefault(KeyMinDelay, DefaultAttachDelay)
		v.SetDefault(KeyMaxDelay, DefaultAttachDelay)
		v.SetDefault(KeyCDPURL, DefaultCDPURL)
		v.SetDefault(KeySubmitLabel, DefaultSubmitLabel)
		v.SetDefault(KeyModalTimeout, DefaultModalTimeout)
		v.SetDefault(KeyPageSettle, DefaultPageSettle)
	default:
		v.SetDefault(KeyMinDelay, DefaultMinDelay)
		v.SetDefault(KeyMaxDelay, DefaultMaxDelay)
		v.SetDefault(KeyTimeout, DefaultTimeout)
		v.SetDefault(KeyUserDataDir, DefaultUserDataDir)
		v.SetDefault(KeyScreenshotDir, DefaultScreenshotDir)
		v.SetDefault(KeyChannel, DefaultChannel)
	}
}

// Load builds and validates the configuration for mode from v.
func Load(v *viper.Viper, mode Mode) (Config, error) {
	cfg := Config{
		Mode:           mode,
		ButtonLabel:    strings.TrimSpace(v.GetString(KeyButtonLabel)),
		ConnectedLabel: strings.TrimSpace(v.GetString(KeyConnectedLabel)),
		LogFile:        strings.TrimSpace(v.GetString(KeyLogFile)),
		LogLevel:       strings.TrimSpace(v.GetString(KeyLogLevel)),
		MinDelay:       seconds(v.GetFloat64(KeyMinDelay)),
		MaxDelay:       seconds(v.GetFloat64(KeyMaxDelay)),
		NavTimeout:     seconds(v.GetFloat64(KeyNavTimeout)),
		NavRetries:     v.GetInt(KeyNavRetries),
	}
	switch mode {
	case Attach:
		cfg.CDPURL = strings.TrimSpace(v.GetString(KeyCDPURL))
		cfg.URLContains = strings.TrimSpace(v.GetString(KeyURLContains))
		cfg.MaxClicks = v.GetInt(KeyMaxClicks)
		cfg.MaxPages = v.GetInt(KeyMaxPages)
		cfg.SubmitLabel = strings.TrimSpace(v.GetString(KeySubmitLabel))
		cfg.ModalTimeout = seconds(v.GetFloat64(KeyModalTimeout))
		cfg.PageSettle = seconds(v.GetFloat64(KeyPageSettle))
		cfg.NoAutoNextPage = v.GetBool(KeyNoAutoNextPage)
		return cfg, cfg.ValidateAttach()
	case Interactive:
		cfg.StartURL = strings.TrimSpace(v.GetString(KeyStartURL))
		cfg.Timeout = seconds(v.GetFloat64(KeyTimeout))
		cfg.UserDataDir = strings.TrimSpace(v.GetString(KeyUserDataDir))
		cfg.ScreenshotDir = strings.TrimSpace(v.GetString(KeyScreenshotDir))
		cfg.UseOpenPage = v.GetBool(KeyUseOpenPage)
		cfg.Channel = strings.ToLower(strings.TrimSpace(v.GetString(KeyChannel)))
		return cfg, cfg.ValidateInteractive()
	default:
		return cfg, fmt.Errorf("%w: unknown mode %q", ErrInvalid, mode)
	}
}

// ValidateInteractive checks the rules of the human-gated driver.
func (c Config) ValidateInteractive() error {
	if c.ButtonLabel == "" {
		return invalid("--%s must not be empty", KeyButtonLabel)
	}
	if c.Timeout <= 0 {
		return invalid("--%s must be greater than 0", KeyTimeout)
	}
	if err := c.validateDelays(); err != nil {
		return err
	}
	if !c.UseOpenPage && c.StartURL == "" {
		return invalid("provide --%s, or use --%s", KeyStartURL, KeyUseOpenPage)
	}
	if !validChannel(c.Channel) {
		return invalid("--%s must be one of %s", KeyChannel, strings.Join(Channels, ", "))
	}
	if c.UserDataDir == "" {
		return invalid("--%s must not be empty", KeyUserDataDir)
	}
	if c.NavTimeout <= 0 {
		return invalid("--%s must be > 0", KeyNavTimeout)
	}
	if c.NavRetries <= 0 {
		return invalid("--%s must be > 0", KeyNavRetries)
	}
	return nil
}

// ValidateAttach checks the rules of the autonomous driver.
func (c Config) ValidateAttach() error {
	if c.ButtonLabel == "" {
		return invalid("--%s must not be empty", KeyButtonLabel)
	}
	if err := c.validateDelays(); err != nil {
		return err
	}
	switch {
	case c.MaxClicks < 0:
		return invalid("--%s must be >= 0", KeyMaxClicks)
	case c.MaxPages < 0:
		return invalid("--%s must be >= 0", KeyMaxPages)
	case c.ModalTimeout < 0:
		return invalid("--%s must be >= 0", KeyModalTimeout)
	case c.NavTimeout <= 0:
		return invalid("--%s must be > 0", KeyNavTimeout)
	case c.NavRetries <= 0:
		return invalid("--%s must be > 0", KeyNavRetries)
	case c.PageSettle < 0:
		return invalid("--%s must be >= 0", KeyPageSettle)
	case c.CDPURL == "":
		return invalid("--%s must not be empty", KeyCDPURL)
	case c.SubmitLabel == "":
		return invalid("--%s must not be empty", KeySubmitLabel)
	}
	return nil
}

func (c Config) validateDelays() error {
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return invalid("delay values must be non-negative")
	}
	if c.MaxDelay < c.MinDelay {
		return invalid("--%s must be >= --%s", KeyMaxDelay, KeyMinDelay)
	}
	return nil
}

// InOneDrive reports a path under a OneDrive-synced folder, where persistent
// browser profiles are known to fail to launch.
func InOneDrive(path string) bool {
	return strings.Contains(strings.ToLower(path), "onedrive")
}

func validChannel(ch string) bool {
	for _, c := range Channels {
		if c == ch {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
