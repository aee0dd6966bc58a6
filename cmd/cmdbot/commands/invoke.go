package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hweary/cmdClient/internal/logging"
)

var (
	invokeAuthor  string
	invokeChannel string
	invokeGuild   string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <command> [args...]",
	Short: "Run one command locally and print its replies",
	Example: `  cmdbot invoke echo --times 2 hello
  cmdbot invoke help echo`,
	Args:               cobra.MinimumNArgs(1),
	RunE:               runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeAuthor, "author", "cli", "Author ID the command runs as")
	invokeCmd.Flags().StringVar(&invokeChannel, "channel", "cli", "Channel ID the command runs in")
	invokeCmd.Flags().StringVar(&invokeGuild, "guild", "", "Guild ID, empty for a direct channel")
	// Everything after the command name belongs to the command.
	invokeCmd.Flags().SetInterspersed(false)
}

func runInvoke(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	if err := a.registry.Initialise(ctx); err != nil {
		return err
	}
	if err := a.registry.Launch(ctx); err != nil {
		return err
	}

	text := strings.Join(args, " ")
	res := a.dispatcher.Invoke(ctx, invokeChannel, invokeGuild, invokeAuthor, text)
	if !res.Matched {
		return fmt.Errorf("no command matches %q", text)
	}
	if res.Skipped {
		return fmt.Errorf("command %s belongs to a disabled module", res.Command)
	}

	for _, id := range res.Responses {
		if msg, ok := a.platform.Get(id); ok {
			fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
		}
	}
	log := logging.Component("invoke")
	log.Debug().Str("outcome", res.Outcome.String()).Msg("Command finished")
	return nil
}
