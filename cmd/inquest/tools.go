// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call gateway tools",
	}
	cmd.PersistentFlags().String("addr", "127.0.0.1:18990", "gateway address (host:port)")
	cmd.PersistentFlags().String("token", "", "app token (Bearer)")
	cmd.PersistentFlags().String("user-token", "", "end user token passed through to tool backends")

	cmd.AddCommand(newToolsListCmd(), newToolsCallCmd())
	return cmd
}

func toolsClient(cmd *cobra.Command) (*gatewayClient, error) {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	userToken, _ := cmd.Flags().GetString("user-token")
	if token == "" {
		return nil, inqerr.New(inqerr.CodeCLISetupFailure, "an app token is required; mint one with 'inquest token'")
	}
	return newGatewayClient(addr, token, userToken), nil
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tools the gateway exposes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := toolsClient(cmd)
			if err != nil {
				return err
			}

			var result struct {
				Tools []struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"tools"`
			}
			if err := client.rpc("tools/list", nil, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Tools) == 0 {
				fmt.Fprintln(out, "no tools registered")
				return nil
			}
			for _, t := range result.Tools {
				fmt.Fprintf(out, "%-20s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name> [arguments-json]",
		Short: "Call one tool directly",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := toolsClient(cmd)
			if err != nil {
				return err
			}

			arguments := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return inqerr.New(inqerr.CodeCLISetupFailure, "arguments must be a JSON object")
				}
				arguments = json.RawMessage(args[1])
			}

			var result struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
				IsError bool `json:"isError"`
			}
			params := map[string]any{"name": args[0], "arguments": arguments}
			if err := client.rpc("tools/call", params, &result); err != nil {
				return err
			}

			var text string
			for _, c := range result.Content {
				if c.Type == "text" {
					text += c.Text
				}
			}
			out := cmd.OutOrStdout()
			if result.IsError {
				fmt.Fprintf(out, "tool error: %s\n", text)
				return nil
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	return cmd
}
