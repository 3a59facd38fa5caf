package main

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// chatHistory bounds the conversation carried between turns.
const chatHistory = 10

var chatDebug bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the shop assistant from the terminal",
	Long: `Reads questions from stdin, one per line, and prints the assistant's
replies. The conversation is kept between lines so follow-up questions work.
An empty line or EOF ends the session.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatDebug, "debug", false, "print extracted product and matches")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *services) error {
		in := bufio.NewScanner(cmd.InOrStdin())
		var conv domain.Conversation
		for {
			cmd.Print("> ")
			if !in.Scan() {
				cmd.Println()
				return in.Err()
			}
			q := strings.TrimSpace(in.Text())
			if q == "" {
				return nil
			}

			resp, err := svc.chat.Reply(ctx, q, conv)
			var verr *domain.ValidationError
			switch {
			case errors.As(err, &verr):
				cmd.Printf("! %v\n", err)
				continue
			case err != nil:
				return err
			}

			cmd.Println(resp.Reply)
			if chatDebug {
				cmd.Printf("  [product=%q found=%d attributes=%d]\n",
					resp.Debug.Extracted.Product, len(resp.Debug.ProductsFound), len(resp.Debug.AttributesFound))
			}
			conv = append(conv,
				domain.Turn{Role: "user", Content: q},
				domain.Turn{Role: "assistant", Content: resp.Reply},
			).Last(chatHistory)
		}
	})
}
