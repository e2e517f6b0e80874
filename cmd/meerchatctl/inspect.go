package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"meerchat/pkg/state"
	"meerchat/pkg/store/pebblestore"
)

var errScanLimit = errors.New("scan limit reached")

func newInspectCmd() *cobra.Command {
	var opts struct {
		DB     string
		Limit  int
		Values bool
	}
	cmd := &cobra.Command{
		Use:   "inspect [prefix]",
		Short: "List raw keys of a stopped server's pebble store",
		Long: "List raw keys of a stopped server's pebble store.\n" +
			"Examples of prefixes: c:general:m: (messages), p: (profiles), idx: (indexes).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			db, err := pebblestore.Open(state.PathsFor(opts.DB).Store)
			if err != nil {
				return fmt.Errorf("open store (is the server still running?): %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			var n int
			var total uint64
			err = db.ScanKeys(prefix, func(k, v []byte) error {
				if opts.Limit > 0 && n >= opts.Limit {
					return errScanLimit
				}
				n++
				total += uint64(len(v))
				if opts.Values {
					fmt.Fprintf(out, "%s\t%s\n", k, v)
				} else {
					fmt.Fprintf(out, "%s\t%s\n", k, humanize.Bytes(uint64(len(v))))
				}
				return nil
			})
			if err != nil && !errors.Is(err, errScanLimit) {
				return err
			}
			fmt.Fprintf(out, "%s keys, %s\n", humanize.Comma(int64(n)), humanize.Bytes(total))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.DB, "db", "./.database", "server data directory")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "l", 100, "maximum keys to print (0 for all)")
	cmd.Flags().BoolVar(&opts.Values, "values", false, "print raw values")
	return cmd
}
