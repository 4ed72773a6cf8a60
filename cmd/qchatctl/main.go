package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/qchat/internal/profile"
	"github.com/matheus3301/qchat/internal/tui/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "qchatctl",
	Short:         "Control a running qchat daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagProfile string
	flagSocket  string
	flagTab     string
	flagJSON    bool
	flagTimeout time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagProfile, "profile", "", "profile name (overrides config default)")
	flags.StringVar(&flagSocket, "socket", "", "daemon socket path (defaults to the profile directory)")
	flags.StringVar(&flagTab, "tab", "", "tab id (defaults to the main tab)")
	flags.BoolVar(&flagJSON, "json", false, "output in JSON format")
	flags.DurationVar(&flagTimeout, "timeout", 10*time.Second, "per-command timeout")

	rootCmd.AddCommand(
		statusCmd,
		healthCmd,
		tabsCmd,
		loginCmd,
		verifyCmd,
		cancelCmd,
		logoutCmd,
		focusCmd,
		presenceCmd,
		messagesCmd,
		sendCmd,
		attachmentCmd,
		watchCmd,
		chartsCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func socketPath() (string, error) {
	if flagSocket != "" {
		return flagSocket, nil
	}
	name := profile.Resolve(flagProfile)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return profile.SocketPath(name), nil
}

// run wraps fn with a connected client and a timeout context. Streaming
// commands pass timeout=false and stop on interrupt instead.
func run(timeout bool, fn func(ctx context.Context, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, err := socketPath()
		if err != nil {
			return err
		}
		c, err := client.New(path)
		if err != nil {
			return fmt.Errorf("cannot connect to daemon at %s: %w", path, err)
		}
		defer func() { _ = c.Close() }()

		ctx := cmd.Context()
		if timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, flagTimeout)
			defer cancel()
		}
		return fn(ctx, c, args)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
