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

func searchCommand() *cli.Command {
	var (
		cfg    config
		userID string
		chatID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Limit results to one user's memories",
			Sources:     cli.EnvVars("RECALL_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "chat-id",
			Usage:       "Limit results to one chat session",
			Sources:     cli.EnvVars("RECALL_CHAT_ID"),
			Destination: &chatID,
		},
	}
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search stored memories by similarity",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return goerr.New("query is required")
			}

			ctx = cfg.setupContext(ctx)

			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			records, err := agent.SearchMemory(ctx, chat.SearchInput{
				Query:  query,
				UserID: model.UserID(userID),
				ChatID: model.ChatID(chatID),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to search memories")
			}

			if len(records) == 0 {
				fmt.Fprintf(c.Root().Writer, "No memories found\n")
				return nil
			}

			for i, r := range records {
				fmt.Fprintf(c.Root().Writer, "%d. [%s] %s\n", i+1, r.Timestamp.Format("2006-01-02 15:04"), r.Question)
				fmt.Fprintf(c.Root().Writer, "   %s\n", firstLine(r.Response))
				if r.ExtractedFacts != "" {
					fmt.Fprintf(c.Root().Writer, "   facts: %s\n", firstLine(r.ExtractedFacts))
				}
			}

			return nil
		},
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
