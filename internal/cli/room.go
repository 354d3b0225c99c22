package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room commands",
	}

	cmd.AddCommand(newRoomListCmd())
	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomGetCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomLeaveCmd())
	cmd.AddCommand(newRoomMembersCmd())
	cmd.AddCommand(newRoomHostCmd())

	return cmd
}

func roomPath(id string, parts ...string) string {
	path := "/api/v1/rooms/" + id
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

func newRoomListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RoomList
			if err := client.Get("/api/v1/rooms", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newRoomCreateCmd() *cobra.Command {
	var (
		name, description, password string
		capacity                    int
		inviteOnly                  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and become its host",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"name": name}
			if description != "" {
				req["description"] = description
			}
			if password != "" {
				req["password"] = password
			}
			if capacity > 0 {
				req["capacity"] = capacity
			}
			if inviteOnly {
				req["invite_only"] = true
			}

			var result Room
			if err := client.Post("/api/v1/rooms", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Room name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Room description")
	cmd.Flags().StringVar(&password, "password", "", "Password required to join")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "Maximum members (default: server default)")
	cmd.Flags().BoolVar(&inviteOnly, "invite-only", false, "Require an accepted knock to join")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newRoomGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <room>",
		Short: "Get room details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Room
			if err := client.Get(roomPath(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newRoomJoinCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req any
			if password != "" {
				req = map[string]string{"password": password}
			}

			var result Room
			if err := client.Post(roomPath(args[0], "join"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Room password")

	return cmd
}

func newRoomLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <room>",
		Short: "Leave a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post(roomPath(args[0], "leave"), nil, nil); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage(fmt.Sprintf("Left room %s", args[0]))
			return nil
		},
	}
}

func newRoomMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <room>",
		Short: "List room members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MemberList
			if err := client.Get(roomPath(args[0], "members"), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newRoomHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host <room> grant|revoke|pass|claim [identity]",
		Short: "Change who hosts a room",
		Long: `Change the room's host.

  grant <identity>   make another member a host
  revoke <identity>  take host away from a member
  pass <identity>    hand your host role to another member
  claim              become host of a room that has none`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, action := args[0], args[1]

			var req any
			switch action {
			case "claim":
				if len(args) != 2 {
					return fmt.Errorf("claim takes no identity")
				}
			case "grant", "revoke", "pass":
				if len(args) != 3 {
					return fmt.Errorf("%s requires an identity", action)
				}
				req = map[string]string{"identity_id": args[2]}
			default:
				return fmt.Errorf("unknown host action %q", action)
			}

			var result Room
			if err := client.Post(roomPath(roomID, "host", action), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}
