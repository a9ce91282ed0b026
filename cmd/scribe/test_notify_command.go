package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/notifications"
	"scribe/internal/services"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return services.Wrap(services.ErrConfiguration, "notifications", "test", "notifications.ntfy_topic is not set", nil)
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return services.Wrap(services.ErrTransient, "notifications", "test", "send failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
