package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"commander/pkg/commander"
)

const version = "0.1.0"

func main() {
	var (
		addr    string
		httpURL string
		timeout time.Duration
	)

	dial := func() (*commander.GRPCClient, error) {
		return commander.DialGRPC(addr)
	}

	root := &cobra.Command{
		Use:           "commander-cli",
		Short:         "Interactive terminal for a commander-server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return runTUI(cmd.Context(), c, timeout)
		},
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOr("COMMANDER_GRPC", "127.0.0.1:9090"), "gRPC address of the server")
	root.PersistentFlags().StringVar(&httpURL, "http", envOr("COMMANDER_HTTP", ""), "use the HTTP API at this base URL instead of gRPC (exec only)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-command timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "exec <line>",
			Short: "Run one console line and print the reply",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				line := strings.Join(args, " ")
				connID := "cli-" + uuid.NewString()

				var (
					out string
					err error
				)
				if httpURL != "" {
					out, err = commander.NewClient(httpURL).Send(ctx, connID, line)
				} else {
					c, derr := dial()
					if derr != nil {
						return derr
					}
					defer c.Close()
					out, err = c.HandleLine(ctx, connID, line)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Stream auto-trading and system notifications",
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := dial()
				if err != nil {
					return err
				}
				defer c.Close()
				return c.Subscribe(cmd.Context(), func(n commander.Notification) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", n.Time.Local().Format("15:04:05"), n.Source, n.Text)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "commander-cli %s\n", version)
			},
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("commander-cli: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runTUI(ctx context.Context, c *commander.GRPCClient, timeout time.Duration) error {
	m := newModel(ctx, c, "tui-"+uuid.NewString(), timeout)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := c.Subscribe(ctx, func(n commander.Notification) {
			p.Send(notificationMsg(n))
		})
		if err != nil {
			p.Send(notificationMsg{Time: time.Now(), Source: "cli", Text: "notification stream closed: " + err.Error()})
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
