package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/goliatone/go-messenger/core"
	"github.com/spf13/cobra"
)

func newConfigureCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Post greeting, get started and menu settings for every page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return err
			}
			logger := newConsoleLogger(os.Stderr, root.logLevel)
			container, err := NewContainer(ctx, cfg, logger, namedProvider{base: logger})
			if err != nil {
				return err
			}
			defer func() { _ = container.Close() }()

			hub := container.Hub()
			channels := hub.Registry().Channels()
			failed := hub.ConfigureAll(ctx)

			out := cmd.OutOrStdout()
			for _, channelID := range channels {
				if err, ok := failed[channelID]; ok {
					fmt.Fprintf(out, "✗ %s: %s\n", channelID, core.RedactString(err.Error()))
					continue
				}
				fmt.Fprintf(out, "✓ %s\n", channelID)
			}
			if len(failed) > 0 {
				ids := make([]string, 0, len(failed))
				for id := range failed {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				return fmt.Errorf("configure failed for %v", ids)
			}
			return nil
		},
	}
}
