package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hasirciogluhq/rethinkconn/internal/api"
)

func newReplCmd(cfg *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read one wire-protocol term per stdin line, run it, print its rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := cfg.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			if cfg.healthAddr != "" {
				hs := api.NewHealthServer(cfg.healthAddr, conn)
				errCh := hs.Start()
				defer hs.Stop(cmd.Context())
				go func() {
					if err, ok := <-errCh; ok && err != nil {
						log.Error().Err(err).Msg("health server stopped")
					}
				}()
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := runAndPrint(cmd, conn, []byte(line)); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			}
			return scanner.Err()
		},
	}
}
