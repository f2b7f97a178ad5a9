package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
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
			Usage:       "Chat session ID (generated when omitted)",
			Sources:     cli.EnvVars("RECALL_CHAT_ID"),
			Destination: &chatID,
		},
		&cli.StringFlag{
			Name:        "chat-name",
			Usage:       "Human-readable chat name stored with each exchange",
			Sources:     cli.EnvVars("RECALL_CHAT_NAME"),
			Destination: &chatName,
		},
	}
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation with memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupContext(ctx)

			agent, err := cfg.newAgent(ctx)
			if err != nil {
				return err
			}

			if chatID == "" {
				chatID = string(model.NewChatID())
			}

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprintf(c.Root().Writer, "Chat session %s started. Type 'exit' to quit.\n", chatID)

			for {
				fmt.Fprintf(c.Root().Writer, "> ")
				if !scanner.Scan() {
					break
				}

				message := scanner.Text()
				if message == "exit" {
					break
				}

				if message == "" {
					continue
				}

				out, err := agent.Ask(ctx, chat.AskInput{
					Question: message,
					UserID:   model.UserID(userID),
					ChatID:   model.ChatID(chatID),
					ChatName: chatName,
				})
				if err != nil {
					return goerr.Wrap(err, "failed to answer question")
				}

				fmt.Fprintf(c.Root().Writer, "%s\n", out.Response)
			}

			fmt.Fprintf(c.Root().Writer, "\nChat session completed\n")
			return nil
		},
	}
}
