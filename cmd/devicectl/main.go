package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfittko/devicectl/internal/config"
	"github.com/mfittko/devicectl/internal/device"
	"github.com/mfittko/devicectl/internal/output"
	"github.com/mfittko/devicectl/internal/remote"
	"github.com/mfittko/devicectl/internal/validation"
)

var (
	version = "dev"

	settings  *config.Config
	logger    = output.NewLogger()
	formatter = output.New(output.FormatText)

	// Command results and relayed script output go to stdout; diagnostics
	// that must not mix with machine-readable results go to stderr.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	// Global flags
	configFile   string
	host         string
	port         string
	user         string
	identity     string
	password     string
	knownHosts   string
	timeout      time.Duration
	outputFormat string
	noColor      bool
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "devicectl",
	Short: "Deploy code to and configure an embedded device over SSH",
	Long: `devicectl drives an embedded device over a single SSH connection.

It can bundle and run a script on the device, scan for and join wireless
networks, and restart the device's mDNS services.

Connection settings come from (highest priority first) command-line flags,
a config file (default: config/device.env if it exists) and DEVICE_*
environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		formatter = output.New(format)
		formatter.SetWriter(stdout)

		if format == output.FormatJSON {
			logger.SetWriters(stderr, stderr)
		} else {
			logger.SetWriters(stdout, stderr)
		}
		logger.SetColor(!noColor)
		logger.SetVerbose(debug)

		settings, err = loadSettings()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file, .env or .yaml (default: config/device.env if exists)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Device host or IP (DEVICE_HOST)")
	rootCmd.PersistentFlags().StringVar(&port, "port", "", "SSH port (DEVICE_PORT, default 22)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "SSH user (DEVICE_USER, default root)")
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "Private key file (DEVICE_IDENTITY)")
	rootCmd.PersistentFlags().StringVar(&password, "ssh-password", "", "SSH password (DEVICE_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&knownHosts, "known-hosts", "", "known_hosts file for host key checking (DEVICE_KNOWN_HOSTS)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort the operation after this long (0 waits indefinitely)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log prefixes")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log connection and step details")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(wifiCmd)
	rootCmd.AddCommand(mdnsCmd)
}

// loadSettings merges flags, the config file and the environment.
func loadSettings() (*config.Config, error) {
	s := config.New()

	s.SetFromFlags("DEVICE_HOST", host)
	s.SetFromFlags("DEVICE_PORT", port)
	s.SetFromFlags("DEVICE_USER", user)
	s.SetFromFlags("DEVICE_IDENTITY", identity)
	s.SetFromFlags("DEVICE_PASSWORD", password)
	s.SetFromFlags("DEVICE_KNOWN_HOSTS", knownHosts)

	path := configFile
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		defaultFile := filepath.Join("config", "device.env")
		if _, err := os.Stat(defaultFile); err == nil {
			path = defaultFile
		}
	}
	if path != "" {
		if err := s.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	s.LoadFromEnvironment()
	return s, nil
}

// newDevice builds a Device from the loaded settings. Connection settings
// are validated here so nothing is dialed with an incomplete config.
func newDevice() (*device.Device, error) {
	cfg, err := remote.ConfigFromSettings(settings)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("target", cfg.User+"@"+cfg.Addr())

	return device.New(remote.SSHDialer{Config: cfg}, device.Options{
		Logger: logger,
		Stdout: stdout,
		Stderr: stderr,
	}), nil
}

// commandContext bounds ctx by --timeout when one is set.
func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// loggedError marks a failure the device pipelines have already reported.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

func pipelineError(err error) error {
	if err == nil || isValidation(err) {
		return err
	}
	return &loggedError{err: err}
}

func isValidation(err error) bool {
	var single *validation.Error
	var multi validation.Errors
	return errors.As(err, &multi) || errors.As(err, &single)
}

// validationResult flattens validation errors for the formatter.
func validationResult(err error) *output.ValidationResult {
	result := &output.ValidationResult{Valid: err == nil}
	if err == nil {
		return result
	}

	var errs []error
	var multi validation.Errors
	if errors.As(err, &multi) {
		errs = multi
	} else {
		errs = []error{err}
	}

	for _, e := range errs {
		var vErr *validation.Error
		if errors.As(e, &vErr) {
			result.Errors = append(result.Errors, output.ValidationError{
				Field:       vErr.Field,
				Value:       vErr.Value,
				Message:     vErr.Message,
				Remediation: vErr.Remediation,
			})
			continue
		}
		result.Errors = append(result.Errors, output.ValidationError{Field: "-", Message: e.Error()})
	}
	return result
}

// exitCode maps a command error to the process exit code. A failed remote
// command passes its own exit code through.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var rf *device.RemoteFailure
	if errors.As(err, &rf) {
		return rf.ExitCode()
	}
	if isValidation(err) {
		return 2
	}
	return 1
}

// report prints err unless a pipeline already logged it.
func report(err error) {
	if isValidation(err) {
		formatter.SetWriter(stderr)
		if printErr := formatter.PrintValidation(validationResult(err)); printErr == nil {
			return
		}
	}
	var logged *loggedError
	if errors.As(err, &logged) {
		return
	}
	fmt.Fprintln(stderr, err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		report(err)
		os.Exit(exitCode(err))
	}
}
