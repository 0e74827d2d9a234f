// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run an investigation",
		Long:  "Send a question to a running gateway and print the final answer once the investigation completes.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("addr", "127.0.0.1:18990", "gateway address (host:port)")
	cmd.Flags().String("token", "", "app token (Bearer)")
	cmd.Flags().String("user-token", "", "end user token passed through to tool backends")
	cmd.Flags().String("conversation", "", "continue an existing conversation by ID")
	cmd.Flags().String("engine", "", "engine/model override")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("token")
	userToken, _ := cmd.Flags().GetString("user-token")
	conversationID, _ := cmd.Flags().GetString("conversation")
	engineRef, _ := cmd.Flags().GetString("engine")

	if token == "" {
		return inqerr.New(inqerr.CodeCLISetupFailure, "an app token is required; mint one with 'inquest token'")
	}

	client := newGatewayClient(addr, token, userToken)

	var resp struct {
		Events []struct {
			Type     string `json:"type"`
			ToolName string `json:"tool_name"`
		} `json:"events"`
		Result struct {
			ConversationID string `json:"conversation_id"`
			Text           string `json:"text"`
			Iterations     int    `json:"iterations"`
			Incomplete     bool   `json:"incomplete"`
		} `json:"result"`
	}
	body := map[string]any{
		"prompt":          strings.Join(args, " "),
		"conversation_id": conversationID,
		"engine":          engineRef,
	}
	if err := client.postJSON("/api/v1/investigations/stream", body, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, ev := range resp.Events {
		if ev.Type == "tool-started" {
			fmt.Fprintf(out, "… %s\n", ev.ToolName)
		}
	}
	fmt.Fprintln(out, resp.Result.Text)
	if resp.Result.Incomplete {
		fmt.Fprintln(out, "(investigation hit its iteration budget; the answer may be partial)")
	}
	fmt.Fprintf(out, "\nconversation: %s (%d iterations)\n", resp.Result.ConversationID, resp.Result.Iterations)
	return nil
}
