package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg    config
		userID string
		chatID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "List one user's exchanges",
			Sources:     cli.EnvVars("RECALL_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "chat-id",
			Usage:       "List one chat session's exchanges",
			Sources:     cli.EnvVars("RECALL_CHAT_ID"),
			Destination: &chatID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List stored conversations (named chats when no filter is given)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupContext(ctx)

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}

			switch {
			case chatID != "":
				records, err := history.ListChatRecords(ctx, repo, cfg.appID, model.ChatID(chatID))
				if err != nil {
					return err
				}
				printRecords(c, records)

			case userID != "":
				records, err := history.ListUserRecords(ctx, repo, cfg.appID, model.UserID(userID))
				if err != nil {
					return err
				}
				printRecords(c, records)

			default:
				chats, err := history.ListNamedChats(ctx, repo, cfg.appID)
				if err != nil {
					return err
				}
				if len(chats) == 0 {
					fmt.Fprintf(c.Root().Writer, "No named chats found\n")
					return nil
				}
				for _, chat := range chats {
					fmt.Fprintf(c.Root().Writer, "%s\t%s\n", chat.ChatID, chat.ChatName)
				}
			}

			return nil
		},
	}
}

func printRecords(c *cli.Command, records []*model.MemoryRecord) {
	if len(records) == 0 {
		fmt.Fprintf(c.Root().Writer, "No exchanges found\n")
		return
	}

	for _, r := range records {
		fmt.Fprintf(c.Root().Writer, "[%s] Q: %s\n", r.Timestamp.Format("2006-01-02 15:04"), r.Question)
		fmt.Fprintf(c.Root().Writer, "%s\n\n", r.Response)
	}
}
