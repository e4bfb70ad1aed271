package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mcqq/internal/player"
	"mcqq/internal/storage"
)

// NewPlayersCmd creates the players command.
func NewPlayersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Inspect and edit account bindings",
	}

	cmd.AddCommand(newPlayersListCmd())
	cmd.AddCommand(newPlayersLinkCmd())
	cmd.AddCommand(newPlayersAdminCmd())

	return cmd
}

// openRegistry loads the player table from the configured storage.
func openRegistry(cmd *cobra.Command) (*player.Registry, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, errNoContext
	}
	db, err := cliCtx.GetStorage()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store, err := storage.NewStore[player.Player](cmd.Context(), db, player.Namespace)
	if err != nil {
		return nil, err
	}
	p := cliCtx.Config.Config().Players
	return player.NewRegistry(store, player.Limits{
		MaxJava:     p.MaxJava,
		MaxBedrock:  p.MaxBedrock,
		MaxAccounts: p.MaxAccounts,
	}), nil
}

func newPlayersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bound players",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			writePlayers(cmd.OutOrStdout(), reg.All())
			return nil
		},
	}
}

func writePlayers(out io.Writer, players []player.Player) {
	if len(players) == 0 {
		fmt.Fprintln(out, "No players bound.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tJAVA\tBEDROCK\tACCOUNTS\tADMIN")
	fmt.Fprintln(w, "----\t----\t-------\t--------\t-----")
	for _, p := range players {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
			p.Name,
			strings.Join(p.JavaName, ","),
			strings.Join(p.BedrockName, ","),
			formatAccounts(p.Accounts),
			p.Bool(player.AdminProperty),
		)
	}
	w.Flush()
}

func formatAccounts(accounts map[string][]string) string {
	platforms := make([]string, 0, len(accounts))
	for k := range accounts {
		platforms = append(platforms, k)
	}
	sort.Strings(platforms)
	parts := make([]string, 0, len(platforms))
	for _, k := range platforms {
		parts = append(parts, k+":"+strings.Join(accounts[k], ","))
	}
	return strings.Join(parts, " ")
}

func newPlayersLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <name> <platform> <id>",
		Short: "Add a chat account to an existing player",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := reg.LinkAccount(ctxOf(cmd), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s:%s to %s\n", args[1], args[2], p.Name)
			return nil
		},
	}
}

func newPlayersAdminCmd() *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "admin <name>",
		Short: "Grant or revoke router admin rights for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			if err := reg.SetProperty(ctxOf(cmd), args[0], player.AdminProperty, !revoke); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s admin = %v\n", args[0], !revoke)
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove admin rights")

	return cmd
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
