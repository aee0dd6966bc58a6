package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Hweary/cmdClient/internal/logging"
)

var (
	commandsJSON   bool
	commandsHidden bool
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List registered commands",
	RunE:  runCommands,
}

func init() {
	commandsCmd.Flags().BoolVar(&commandsJSON, "json", false, "Output as JSON")
	commandsCmd.Flags().BoolVar(&commandsHidden, "hidden", false, "Include hidden commands")
}

type commandRow struct {
	Name      string   `json:"name"`
	Module    string   `json:"module"`
	Aliases   []string `json:"aliases,omitempty"`
	Flags     []string `json:"flags,omitempty"`
	Hidden    bool     `json:"hidden,omitempty"`
	ShortHelp string   `json:"shortHelp,omitempty"`
}

func runCommands(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, false)

	a, err := newApp(cfg, logging.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	var rows []commandRow
	for _, c := range a.registry.Commands() {
		if c.Hidden && !commandsHidden {
			continue
		}
		rows = append(rows, commandRow{
			Name:      c.Name,
			Module:    c.Module().Name(),
			Aliases:   c.Aliases,
			Flags:     c.Flags,
			Hidden:    c.Hidden,
			ShortHelp: c.ShortHelp,
		})
	}

	if commandsJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODULE\tALIASES\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", cfg.Prefixes[0], r.Name, r.Module, strings.Join(r.Aliases, ","), r.ShortHelp)
	}
	return tw.Flush()
}
