package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hasirciogluhq/rethinkconn/pkg/rethinkdb"
)

func newConnectCmd(cfg *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Run the handshake and print the server's SERVER_INFO atom",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := cfg.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			info, err := conn.ServerInfo()
			if err != nil {
				return err
			}
			out, err := rethinkdb.ToJSON(info)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
