// Package history replays stored memory records outside the chat
// pipeline: per-user transcripts and cross-session chat listings.
package history

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
)

// ListUserRecords returns every stored exchange for one user in
// chronological order.
func ListUserRecords(ctx context.Context, repo repository.Repository, appID string, userID model.UserID) ([]*model.MemoryRecord, error) {
	if userID == "" {
		return nil, goerr.New("user id is required")
	}

	records, err := repo.Scroll(ctx, model.SearchFilter{
		AppID:  appID,
		UserID: userID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list user records")
	}

	return records, nil
}

// NamedChat is one named conversation thread.
type NamedChat struct {
	ChatID   model.ChatID
	ChatName string
}

// ListNamedChats returns the distinct named chats in this deployment,
// sorted by name. Records without a chat name are ignored.
func ListNamedChats(ctx context.Context, repo repository.Repository, appID string) ([]NamedChat, error) {
	records, err := repo.Scroll(ctx, model.SearchFilter{AppID: appID})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan chat records")
	}

	seen := map[model.ChatID]string{}
	for _, r := range records {
		if r.ChatID == "" || r.ChatName == "" {
			continue
		}
		seen[r.ChatID] = r.ChatName
	}

	chats := make([]NamedChat, 0, len(seen))
	for id, name := range seen {
		chats = append(chats, NamedChat{ChatID: id, ChatName: name})
	}

	sort.Slice(chats, func(i, j int) bool {
		if chats[i].ChatName == chats[j].ChatName {
			return chats[i].ChatID < chats[j].ChatID
		}
		return chats[i].ChatName < chats[j].ChatName
	})

	return chats, nil
}

// ListChatRecords returns one chat's exchanges in chronological order.
func ListChatRecords(ctx context.Context, repo repository.Repository, appID string, chatID model.ChatID) ([]*model.MemoryRecord, error) {
	if chatID == "" {
		return nil, goerr.New("chat id is required")
	}

	records, err := repo.Scroll(ctx, model.SearchFilter{
		AppID:  appID,
		ChatID: chatID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chat records")
	}

	return records, nil
}
