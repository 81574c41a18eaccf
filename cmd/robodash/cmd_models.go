package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "列出网关可用的模型，* 表示已在配置中启用",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.tracker.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range models {
				marker := " "
				if slices.Contains(a.cfg.Models, m.ID) {
					marker = "*"
				}
				if m.OwnedBy != "" {
					fmt.Fprintf(out, "%s %s (%s)\n", marker, m.ID, m.OwnedBy)
				} else {
					fmt.Fprintf(out, "%s %s\n", marker, m.ID)
				}
			}
			return nil
		},
	}
}
