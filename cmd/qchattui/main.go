package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/qchat/internal/config"
	"github.com/matheus3301/qchat/internal/logging"
	"github.com/matheus3301/qchat/internal/profile"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/tui"
	"github.com/matheus3301/qchat/internal/tui/client"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	tabFlag := flag.String("tab", "", "tab id to attach to (defaults to the main tab)")
	newTab := flag.Bool("new-tab", false, "open a fresh tab instead of attaching to an existing one")
	downloads := flag.String("downloads", ".", "directory for fetched attachments and exported charts")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := profile.SocketPath(name)

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	tab := *tabFlag
	if *newTab {
		tab, err = openTab(c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open tab: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		cfg = config.Default()
	}
	logger, err := logging.New(logging.Options{
		Path:    filepath.Join(profile.LogDir(name), "qchattui.log"),
		Profile: name,
		Level:   cfg.Log.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tui log disabled: %v\n", err)
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	app := tui.NewApp(c, tui.Options{
		Profile:     name,
		Tab:         tab,
		CountryCode: cfg.Verifier.CountryCode,
		DownloadDir: *downloads,
		Logger:      logger,
	})
	err = app.Run()
	if *newTab {
		closeTab(c, tab)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon checks if a daemon is running and reports SERVING on the socket.
func probeDaemon(socketPath string) bool {
	c, err := client.New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ready(ctx)
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	qchatd := filepath.Join(filepath.Dir(executable), "qchatd")

	if _, err := os.Stat(qchatd); err != nil {
		qchatd = "qchatd"
	}

	cmd := exec.Command(qchatd, "--profile", name)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the daemon with a real gRPC health check (not just socket connect).
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

func openTab(c *client.Client) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Session.OpenTab(ctx, &rpc.OpenTabRequest{})
	if err != nil {
		return "", err
	}
	return resp.Tab, nil
}

func closeTab(c *client.Client, tab string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = c.Session.CloseTab(ctx, &rpc.CloseTabRequest{Tab: tab})
}
