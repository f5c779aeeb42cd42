package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"royalty/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("daemon returned an empty notification response")
				}
				return ctx.render(cmd, resp, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), notifyText(resp))
					return nil
				})
			})
		},
	}
}

func notifyText(resp *ipc.TestNotificationResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if resp.Sent {
		return "Test notification sent"
	}
	return "Notification not sent (events.ntfy_topic is empty)"
}
