package history_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/usecase/history"
)

func seedRepo(t *testing.T) *repository.ChromemRepo {
	t.Helper()

	ctx := context.Background()
	repo, err := repository.NewChromem("test-app")
	gt.NoError(t, err)
	gt.NoError(t, repo.EnsureCollection(ctx))

	vec := make([]float32, model.VectorDimension)
	vec[0] = 1

	records := []*model.MemoryRecord{
		{ID: 1, Vector: vec, Question: "q1", Response: "r1", UserID: "alice", AppID: "test-app", ChatID: "chat-a", ChatName: "work notes"},
		{ID: 2, Vector: vec, Question: "q2", Response: "r2", UserID: "alice", AppID: "test-app", ChatID: "chat-a", ChatName: "work notes"},
		{ID: 3, Vector: vec, Question: "q3", Response: "r3", UserID: "bob", AppID: "test-app", ChatID: "chat-b", ChatName: "cooking"},
		{ID: 4, Vector: vec, Question: "q4", Response: "r4", UserID: "bob", AppID: "test-app"},
	}
	for _, r := range records {
		gt.NoError(t, repo.Upsert(ctx, r))
	}

	return repo
}

func TestListUserRecords(t *testing.T) {
	repo := seedRepo(t)

	records, err := history.ListUserRecords(context.Background(), repo, "test-app", "alice")
	gt.NoError(t, err)
	gt.A(t, records).Length(2)
	gt.Equal(t, records[0].Question, "q1")
	gt.Equal(t, records[1].Question, "q2")

	_, err = history.ListUserRecords(context.Background(), repo, "test-app", "")
	gt.Error(t, err)
}

func TestListNamedChats(t *testing.T) {
	repo := seedRepo(t)

	chats, err := history.ListNamedChats(context.Background(), repo, "test-app")
	gt.NoError(t, err)
	gt.A(t, chats).Length(2)
	gt.Equal(t, chats[0].ChatName, "cooking")
	gt.Equal(t, chats[1].ChatName, "work notes")
}

func TestListChatRecords(t *testing.T) {
	repo := seedRepo(t)

	records, err := history.ListChatRecords(context.Background(), repo, "test-app", "chat-a")
	gt.NoError(t, err)
	gt.A(t, records).Length(2)

	_, err = history.ListChatRecords(context.Background(), repo, "test-app", "")
	gt.Error(t, err)
}
