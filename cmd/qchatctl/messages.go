package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/qchat/internal/blob"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/tui/client"
	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Print the message log",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Message.ListMessages(ctx, &rpc.ListMessagesRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp.Messages)
			return nil
		}
		for _, m := range resp.Messages {
			fmt.Printf("[%s] %s: %s\n", m.TS.Local().Format("15:04"), m.FromName, m.Text)
			for _, a := range m.Attachments {
				fmt.Printf("    + %s (%s, %d bytes) id=%s\n", a.Name, a.Type, a.Size, a.ID)
			}
		}
		return nil
	}),
}

var flagAttach []string

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send a message, optionally with attachments",
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		uploads, err := rpc.ReadUploads(flagAttach)
		if err != nil {
			return err
		}
		resp, err := c.Message.SendMessage(ctx, &rpc.SendMessageRequest{
			Tab:         flagTab,
			Text:        strings.Join(args, " "),
			Attachments: uploads,
		})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp)
			return nil
		}
		if resp.Message == nil {
			fmt.Println("Nothing to send.")
			return nil
		}
		fmt.Printf("Sent %s with %d attachment(s)\n", resp.Message.ID, len(resp.Message.Attachments))
		return nil
	}),
}

var flagOutput string

var attachmentCmd = &cobra.Command{
	Use:   "attachment <id>",
	Short: "Fetch an attachment, retrying while it is not yet available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loads can retry for several seconds before reporting unavailable.
		if !cmd.Flags().Changed("timeout") {
			flagTimeout = time.Minute
		}
		return run(true, fetchAttachment)(cmd, args)
	},
}

func fetchAttachment(ctx context.Context, c *client.Client, args []string) error {
	resp, err := c.Message.GetAttachment(ctx, &rpc.GetAttachmentRequest{Tab: flagTab, ID: args[0]})
	if err != nil {
		return err
	}
	if flagJSON {
		outputJSON(resp)
		return nil
	}
	if resp.Outcome != blob.Found.String() {
		return fmt.Errorf("attachment %s %s after %d attempt(s): %s", args[0], resp.Outcome, resp.Attempts, resp.Error)
	}
	out := flagOutput
	if out == "" {
		out = filepath.Base(resp.Name)
	}
	if err := os.WriteFile(out, resp.Data, 0o600); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	fmt.Printf("Saved %s (%s, %d bytes)\n", out, resp.Type, resp.Size)
	return nil
}

func init() {
	sendCmd.Flags().StringArrayVarP(&flagAttach, "attach", "a", nil, "file to attach (repeatable)")
	attachmentCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (defaults to the attachment name)")
}
