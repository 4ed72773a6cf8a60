package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/tui/client"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tab status",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Session.GetStatus(ctx, &rpc.GetStatusRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Profile:  %s\n", resp.Profile)
		fmt.Printf("Tab:      %s\n", resp.Tab)
		fmt.Printf("State:    %s\n", resp.State)
		if resp.Identity != nil {
			fmt.Printf("User:     %s (%s)\n", resp.Identity.Name, resp.Identity.Phone)
		}
		fmt.Printf("Title:    %s\n", resp.Title)
		fmt.Printf("Messages: %d (unread %d)\n", resp.Messages, resp.Unread)
		fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMS) * time.Millisecond).Round(time.Second))
		fmt.Printf("Tabs:     %v\n", resp.Tabs)
		return nil
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(map[string]string{"status": resp.GetStatus().String()})
			return nil
		}
		fmt.Println(resp.GetStatus().String())
		return nil
	}),
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List, open or close tabs",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Session.GetStatus(ctx, &rpc.GetStatusRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp.Tabs)
			return nil
		}
		for _, t := range resp.Tabs {
			fmt.Println(t)
		}
		return nil
	}),
}

var tabsOpenCmd = &cobra.Command{
	Use:   "open [name]",
	Short: "Open a tab",
	Args:  cobra.MaximumNArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		req := &rpc.OpenTabRequest{}
		if len(args) == 1 {
			req.Name = args[0]
		}
		resp, err := c.Session.OpenTab(ctx, req)
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		fmt.Println(resp.Tab)
		return nil
	}),
}

var tabsCloseCmd = &cobra.Command{
	Use:   "close <tab>",
	Short: "Close a tab",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		_, err := c.Session.CloseTab(ctx, &rpc.CloseTabRequest{Tab: args[0]})
		return err
	}),
}

var loginCmd = &cobra.Command{
	Use:   "login <phone> [name]",
	Short: "Send a verification code to a phone number",
	Args:  cobra.RangeArgs(1, 2),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		req := &rpc.SendCodeRequest{Tab: flagTab, CountryCode: flagCountry, Phone: args[0]}
		if len(args) == 2 {
			req.Name = args[1]
		}
		resp, err := c.Session.SendCode(ctx, req)
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Code sent to %s via %s\n", resp.Phone, resp.Provider)
		if resp.Code != "" {
			fmt.Printf("Test code: %s\n", resp.Code)
		}
		return nil
	}),
}

var flagCountry string

var verifyCmd = &cobra.Command{
	Use:   "verify <code>",
	Short: "Verify the pending code and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		resp, err := c.Session.Verify(ctx, &rpc.VerifyRequest{Tab: flagTab, Code: args[0]})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("Signed in as %s (%s)\n", resp.Identity.Name, resp.Identity.Phone)
		return nil
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon a pending verification code",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		_, err := c.Session.CancelLogin(ctx, &rpc.CancelLoginRequest{Tab: flagTab})
		return err
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign the tab out",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		_, err := c.Session.Logout(ctx, &rpc.LogoutRequest{Tab: flagTab})
		return err
	}),
}

var focusCmd = &cobra.Command{
	Use:   "focus <true|false>",
	Short: "Mark the tab focused or in the background",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		focused, err := strconv.ParseBool(args[0])
		if err != nil {
			return fmt.Errorf("focus: %w", err)
		}
		resp, err := c.Session.SetFocus(ctx, &rpc.SetFocusRequest{Tab: flagTab, Focused: focused})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		fmt.Printf("%s (unread %d)\n", resp.Title, resp.Unread)
		return nil
	}),
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List users active in the last minute",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Session.ListPresence(ctx, &rpc.ListPresenceRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp.Entries)
			return nil
		}
		if len(resp.Entries) == 0 {
			fmt.Println("Nobody online.")
			return nil
		}
		for _, e := range resp.Entries {
			seen := time.UnixMilli(e.LastSeen).Format("15:04:05")
			fmt.Printf("%-20s %-16s %s\n", e.Name, e.Phone, seen)
		}
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream tab events until interrupted",
	Args:  cobra.NoArgs,
	RunE: run(false, func(ctx context.Context, c *client.Client, _ []string) error {
		stream, err := c.Session.WatchEvents(ctx, &rpc.WatchEventsRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		for {
			ev, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if flagJSON {
				outputJSON(ev)
				continue
			}
			fmt.Println(formatEvent(ev))
		}
	}),
}

func formatEvent(ev *rpc.Event) string {
	at := time.UnixMilli(ev.AtMS).Format("15:04:05")
	switch ev.Kind {
	case rpc.EventSnapshot:
		return fmt.Sprintf("%s %s state=%s unread=%d title=%q", at, ev.Kind, ev.State, ev.Unread, ev.Title)
	case "status_changed":
		return fmt.Sprintf("%s %s state=%s", at, ev.Kind, ev.State)
	case "attention":
		return fmt.Sprintf("%s %s unread=%d flash=%t title=%q", at, ev.Kind, ev.Unread, ev.Flash, ev.Title)
	default:
		return fmt.Sprintf("%s %s", at, ev.Kind)
	}
}

func init() {
	tabsCmd.AddCommand(tabsOpenCmd, tabsCloseCmd)
	loginCmd.Flags().StringVar(&flagCountry, "country", "", "country code such as +256 (defaults to the daemon config)")
}
