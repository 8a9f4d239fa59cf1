package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hasirciogluhq/rethinkconn/pkg/rethinkdb"
)

func newQueryCmd(cfg *rootConfig) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "query [term.json]",
		Short: "Run a single wire-protocol term to completion and print every row",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				file = args[0]
			}
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			term, err := io.ReadAll(src)
			if err != nil {
				return fmt.Errorf("reading term: %w", err)
			}

			conn, err := cfg.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			return runAndPrint(cmd, conn, term)
		},
	}
	return cmd
}

func runAndPrint(cmd *cobra.Command, conn *rethinkdb.Connection, term []byte) error {
	cur, err := conn.RunCursor(term)
	if err != nil {
		return err
	}
	defer cur.Close()

	var raw json.RawMessage
	for cur.Next(&raw) {
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	}
	return cur.Err()
}
