package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/result"
)

var flagListModel string

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured models and past episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			fmt.Println("Models:")
			ids := make([]string, 0, len(cfg.Models))
			for id := range cfg.Models {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				m := cfg.Models[id]
				marker := " "
				if id == cfg.DefaultModel {
					marker = "*"
				}
				fmt.Printf("  %s %s (%s/%s)\n", marker, id, m.Provider, m.Name)
			}

			if dirs, err := os.ReadDir(cfg.TemplatesDir); err == nil {
				fmt.Println("\nTemplates:")
				for _, d := range dirs {
					if d.IsDir() {
						fmt.Printf("  %s\n", d.Name())
					}
				}
			}

			indexPath := filepath.Join(cfg.RunsDir, "index.db")
			if _, err := os.Stat(indexPath); os.IsNotExist(err) {
				return nil
			}
			index, err := result.OpenIndex(indexPath)
			if err != nil {
				return err
			}
			defer index.Close()

			entries, err := index.List(flagListModel)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}

			fmt.Println("\nEpisodes:")
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  ID\tMODEL\tAPP\tSTATUS\tSTEPS\tSCORE\tPASS\tFINISHED")
			for _, e := range entries {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%.1f\t%v\t%s\n",
					e.EpisodeID, e.Model, e.AppName, e.AgentStatus, e.Steps,
					e.OverallScore, e.OverallPass, e.FinishedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&flagListModel, "model", "", "filter episodes by model")
	return cmd
}
