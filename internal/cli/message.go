package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Room message commands",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageListCmd())

	return cmd
}

func newMessageSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <room> <text...>",
		Short: "Send a message to a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"body": strings.Join(args[1:], " ")}

			var result Message
			if err := client.Post(roomPath(args[0], "messages"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newMessageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <room>",
		Short: "Show a room's retained history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MessageList
			if err := client.Get(roomPath(args[0], "messages"), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}
