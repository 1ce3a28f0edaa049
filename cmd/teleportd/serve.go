package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "load storage and write back periodically until interrupted",
		Long:  `load every storage unit, write back every write_back_interval, SIGHUP forces a write back, SIGINT or SIGTERM shuts down`,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost()
			if err != nil {
				return err
			}
			defer h.close()
			if err := h.registry.PostLoad(); err != nil {
				h.logger.Warnw("some units failed to load.", "err", err)
			}
			if err := h.registry.Start(h.application.WriteBackInterval); err != nil {
				return err
			}
			h.logger.Infow("teleport storage started.", "units", h.registry.Units())

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(signals)
			for sig := range signals {
				if sig == syscall.SIGHUP {
					h.logger.Info("write back requested.")
					h.registry.Flush()
					continue
				}
				h.logger.Infow("shutting down.", "signal", sig.String())
				break
			}
			if err := h.registry.PostUnload(); err != nil {
				h.logger.Warnw("some units failed to unload.", "err", err)
			}
			return nil
		},
	})
}
