package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"peterbot/internal/generation"
	"peterbot/internal/persona"
	"peterbot/internal/types"
)

var (
	askStream bool
	askImages []string
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Ask the persona a one-off question and print the answer",
	Long: `Sends a single prompt through the configured backend and persona without
connecting to a chat platform. Useful for checking credentials and prompts.

Example:
  peterbot ask "what's the deal with airline food?"
  peterbot ask --stream --image https://example.com/cat.png "what is this?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "Print fragments as they arrive")
	askCmd.Flags().StringArrayVar(&askImages, "image", nil, "Image URL to include (repeatable)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	p, err := persona.Load(cfg.Persona.File)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetLLMTimeout())
	defer cancel()

	client, err := generation.NewClientFromConfig(ctx, cfg, p.Static())
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	req := types.GenerationRequest{
		Prompt: strings.Join(args, " "),
		Images: askImages,
	}
	out := cmd.OutOrStdout()

	if askStream {
		err := generation.Drain(ctx, client, req, func(fragment string) {
			fmt.Fprint(out, fragment)
		})
		fmt.Fprintln(out)
		return err
	}

	answer, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, answer)
	return nil
}
