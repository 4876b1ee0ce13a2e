package cli

import (
	"fmt"

	"github.com/sharetube/watchparty/internal/client"
	"github.com/spf13/cobra"
)

func newRoomCmd(o *options) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Room helpers",
	}

	room.AddCommand(&cobra.Command{
		Use:   "gen-id",
		Short: "Print a fresh room code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(o.out, client.NewIdentityGenerator(o.random()).RoomId())
			return err
		},
	})

	return room
}
