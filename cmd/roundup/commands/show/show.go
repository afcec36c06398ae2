package show

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/cmd/roundup/commands/cmdutil"
	"github.com/venslabs/roundup/pkg/history"
	"github.com/venslabs/roundup/pkg/ticket"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "show [flags] ITERATION PACKAGE",
		Short:                 "Render a ticket in the terminal",
		Example:               "  roundup show 7 libtiff-4.0.9\n  roundup show --raw latest libtiff-4.0.9",
		Args:                  cobra.ExactArgs(2),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.Bool("raw", false, "print the markdown instead of rendering it")
	flags.Int("width", 100, "word wrap width")

	return cmd
}

func action(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	base, err := cmdutil.OutDir(cmd)
	if err != nil {
		return err
	}
	n, err := cmdutil.ParseIteration(base, args[0])
	if err != nil {
		return err
	}
	md, err := Load(history.IterDir(base, n), ticket.Identity(args[1]))
	if err != nil {
		return err
	}

	if raw, _ := flags.GetBool("raw"); raw {
		_, err = cmd.OutOrStdout().Write(md)
		return err
	}
	width, err := flags.GetInt("width")
	if err != nil {
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(string(md))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// Load returns the markdown of the ticket of id in dir.
func Load(dir string, id ticket.Identity) ([]byte, error) {
	p := filepath.Join(dir, id.FileName())
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("no ticket for %s in %s: %w", id, dir, err)
	}
	md, err := ticket.Markdown(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return []byte(strings.TrimLeft(string(md), "\n")), nil
}
