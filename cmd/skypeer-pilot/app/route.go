package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/skypeer/internal/pilot/route"
)

func newRouteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Inspect route files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Parse a route file and print every step without flying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := route.Load(args[0])
			if err != nil {
				return err
			}
			if skipped := printRoute(cmd.OutOrStdout(), rt); skipped > 0 {
				return fmt.Errorf("%d malformed step(s) would be skipped", skipped)
			}
			return nil
		},
	})
	return cmd
}

// printRoute writes one row per step and returns the number of steps that
// would be skipped at run time.
func printRoute(w io.Writer, rt *route.Route) int {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("LINE", "TEXT", "COMMAND", "NOTE")

	skipped := 0
	for _, s := range rt.Remaining() {
		note := ""
		switch {
		case s.Skipped():
			skipped++
			note = "skipped: " + s.Err.Error()
		case s.Err != nil:
			note = "ignored: " + s.Err.Error()
		}
		table.AddRow(strconv.Itoa(s.Line), s.Text, s.Command.String(), note)
	}

	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "\n%d step(s), %d malformed\n", rt.Len(), skipped)
	return skipped
}
