package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reticle/internal/daemon"
	"reticle/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow    bool
		lines     int
		component string
		session   string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			query := url.Values{"limit": {strconv.Itoa(lines)}}
			if component != "" {
				query.Set("component", component)
			}
			if session != "" {
				query.Set("session", session)
			}
			query.Set("tail", "1")

			var resp daemon.LogStreamResponse
			if err := client.get(cmd.Context(), "/api/logs", query, &resp); err != nil {
				return err
			}
			printLogEvents(cmd.OutOrStdout(), resp.Events)
			if !follow {
				return nil
			}

			query.Del("tail")
			query.Set("follow", "1")
			next := resp.Next
			for {
				query.Set("since", strconv.FormatUint(next, 10))
				if err := client.get(cmd.Context(), "/api/logs", query, &resp); err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				printLogEvents(cmd.OutOrStdout(), resp.Events)
				if resp.Next > next {
					next = resp.Next
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new log events")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&session, "session", "", "Only show events from this session id")
	return cmd
}

func printLogEvents(out io.Writer, events []logging.LogEvent) {
	for _, evt := range events {
		var b strings.Builder
		b.WriteString(evt.Timestamp.Format("15:04:05.000"))
		b.WriteString(" ")
		b.WriteString(strings.ToUpper(evt.Level))
		if evt.Component != "" {
			b.WriteString(" [" + evt.Component + "]")
		}
		b.WriteString(" " + evt.Message)
		if evt.EventType != "" {
			b.WriteString(" event_type=" + evt.EventType)
		}
		fmt.Fprintln(out, b.String())
	}
}
