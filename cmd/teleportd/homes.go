package main

import (
	"fmt"

	"github.com/RuiFG/teleport/store"
	"github.com/RuiFG/teleport/store/home"
	"github.com/RuiFG/teleport/store/permission"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "homes [player]",
		Short: "list stored homes",
		Long:  `list the homes of one player, or every player with a home, the server must not be running`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost()
			if err != nil {
				return err
			}
			defer h.close()
			if err := h.registry.PostLoad(); err != nil {
				return err
			}
			homes, permissions, err := lookupUnits(h.registry)
			if err != nil {
				return err
			}
			players := args
			if len(players) == 0 {
				players = homes.Owners()
			}
			out := cmd.OutOrStdout()
			for _, player := range players {
				_, _ = fmt.Fprintf(out, "%s %v\n", player, permissions.Permissions(player))
				for _, record := range homes.GetHomes(player) {
					_, _ = fmt.Fprintf(out, "  %-16s dim=%d x=%.2f y=%.2f z=%.2f modified=%s\n",
						record.Name, record.Dimension, record.Position.X, record.Position.Y, record.Position.Z,
						record.ModifiedAt.Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	})
}

func lookupUnits(registry *store.Registry) (*home.Unit, *permission.Unit, error) {
	homes, ok := store.Lookup[*home.Unit](registry)
	if !ok {
		return nil, nil, errors.New("home unit not registered")
	}
	permissions, ok := store.Lookup[*permission.Unit](registry)
	if !ok {
		return nil, nil, errors.New("permission unit not registered")
	}
	return homes, permissions, nil
}
