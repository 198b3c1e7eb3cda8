package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/typescope/mcpquic"
)

var (
	callAddr     string
	callInsecure bool
	callTimeout  time.Duration
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool on a remote typescope serve --mcp-quic",
		Long:  "Call a tool on a remote typescope serve --mcp-quic. With no tool name, list the tools.",
		Args:  cobra.MaximumNArgs(2),
		RunE:  runCallCmd,
	}
	cmd.Flags().StringVar(&callAddr, "addr", "localhost:9444", "server address")
	cmd.Flags().BoolVar(&callInsecure, "insecure", false, "skip certificate verification (self-signed servers)")
	cmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "call timeout")
	return cmd
}

func runCallCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, callTimeout)
	defer cancel()

	c := mcpquic.NewClient(callAddr, mcpquic.ClientTLSConfig(callInsecure))
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		res, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		for _, t := range res.Tools {
			fmt.Fprintf(out, "%-22s %s\n", t.Name, t.Description)
		}
		return nil
	}

	var toolArgs map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("call: arguments: %w", err)
		}
	}
	res, err := c.CallTool(ctx, args[0], toolArgs)
	if err != nil {
		return err
	}
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			fmt.Fprintln(out, tc.Text)
		}
	}
	if res.IsError {
		return errors.New("call: tool reported an error")
	}
	return nil
}
