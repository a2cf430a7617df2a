package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/skypeer/internal/pilot/journal"
)

func newJournalCommand() *cobra.Command {
	var (
		path  string
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the commands recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			var entries []journal.Entry
			if runID != "" {
				entries, err = j.Run(cmd.Context(), runID)
			} else {
				entries, err = j.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			printJournal(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "skypeer-journal.db", "Journal database to read.")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of most recent entries to show.")
	cmd.Flags().StringVar(&runID, "run", "", "Show every entry of this route run instead.")
	return cmd
}

func printJournal(w io.Writer, entries []journal.Entry) {
	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("AT", "SOURCE", "RUN", "LINE", "COMMAND", "RESULT", "TOOK", "ERROR")
	for _, e := range entries {
		line := ""
		if e.Line > 0 {
			line = strconv.Itoa(e.Line)
		}
		table.AddRow(e.At.Local().Format(time.DateTime), e.Source, shortID(e.RunID), line,
			e.Command, e.Result, e.Duration.String(), e.Error)
	}
	fmt.Fprintln(w, table)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
