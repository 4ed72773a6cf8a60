package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/tui/client"
	"github.com/spf13/cobra"
)

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "List, create, delete or export charts",
	Args:  cobra.NoArgs,
	RunE: run(true, func(ctx context.Context, c *client.Client, _ []string) error {
		resp, err := c.Chart.ListCharts(ctx, &rpc.ListChartsRequest{Tab: flagTab})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp.Charts)
			return nil
		}
		if len(resp.Charts) == 0 {
			fmt.Println("No charts yet.")
			return nil
		}
		for _, ch := range resp.Charts {
			created := time.UnixMilli(ch.CreatedAt).Format("2006-01-02 15:04")
			fmt.Printf("%-38s %-9s %-24s %s %s\n", ch.ID, ch.Type, ch.Title, created, ch.OwnerPhone)
		}
		return nil
	}),
}

var (
	flagChartType  string
	flagChartTitle string
)

var chartsCreateCmd = &cobra.Command{
	Use:   "create <csv-file|->",
	Short: "Create a chart from label,value CSV",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		resp, err := c.Chart.CreateChart(ctx, &rpc.CreateChartRequest{
			Tab:   flagTab,
			Title: flagChartTitle,
			Type:  flagChartType,
			CSV:   string(data),
		})
		if err != nil {
			return err
		}
		if flagJSON {
			outputJSON(resp.Chart)
			return nil
		}
		fmt.Printf("Created %s %q (%d points)\n", resp.Chart.ID, resp.Chart.Title, len(resp.Chart.Data.Labels))
		return nil
	}),
}

var chartsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chart you own",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		_, err := c.Chart.DeleteChart(ctx, &rpc.DeleteChartRequest{Tab: flagTab, ID: args[0]})
		return err
	}),
}

var flagChartOut string

var chartsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Render a chart to PNG",
	Args:  cobra.ExactArgs(1),
	RunE: run(true, func(ctx context.Context, c *client.Client, args []string) error {
		resp, err := c.Chart.ExportChart(ctx, &rpc.ExportChartRequest{Tab: flagTab, ID: args[0]})
		if err != nil {
			return err
		}
		out := flagChartOut
		if out == "" {
			out = filepath.Base(resp.FileName)
		}
		if err := os.WriteFile(out, resp.PNG, 0o644); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		fmt.Printf("Saved %s\n", out)
		return nil
	}),
}

func init() {
	chartsCreateCmd.Flags().StringVar(&flagChartTitle, "title", "", "chart title (defaults to Untitled)")
	chartsCreateCmd.Flags().StringVar(&flagChartType, "type", chart.TypeLine, "chart type: line, bar, pie or doughnut")
	chartsExportCmd.Flags().StringVarP(&flagChartOut, "output", "o", "", "output file (defaults to <title>.png)")
	chartsCmd.AddCommand(chartsCreateCmd, chartsDeleteCmd, chartsExportCmd)
}
