package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg      config
		userID   string
		chatID   string
		chatName string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID owning the memories",
			Sources:     cli.EnvVars("RECALL_USER_ID"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "chat-id",
			Usage:       "Chat session ID to scope recall and storage",
			Sources:     cli.EnvVars("RECALL_CHAT_ID"),
			Destination: &chatID,
		},
		&cli.StringFlag{
			Name:        "chat-name",
			Usage:       "Human-readable chat name stored with the exchange",
			Sources:     cli.EnvVars("RECALL_CHAT_NAME"),
			Destination: &chatName,
		},
	}
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a single question and print the answer",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if question == "" {
				return goerr.New("question is required")
			}

			ctx = cfg.setupContext(ctx)

			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			out, err := agent.Ask(ctx, chat.AskInput{
				Question: question,
				UserID:   model.UserID(userID),
				ChatID:   model.ChatID(chatID),
				ChatName: chatName,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to answer question")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", out.Response)
			return nil
		},
	}
}
