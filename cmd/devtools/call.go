package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call [Domain.command] [params-json]",
	Short: "Send one command and print its result",
	Long: WrapString(`Sends a command to the endpoint and prints the JSON result. Params default to an empty object.`) +
		"\n\nExample:\n  devtools call Target.createTarget '{\"url\":\"about:blank\"}'",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		var params json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("params are not valid JSON: %s", args[1])
			}
			params = json.RawMessage(args[1])
		}

		conn, err := connect(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer writeMetrics() // Before Close drops the series

		result, err := conn.SendRequest(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, result, "", "  "); err != nil {
			out.Reset()
			out.Write(result)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(os.Stdout)
		return err
	},
}
