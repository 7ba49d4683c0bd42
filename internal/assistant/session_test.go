package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapinsight/internal/conversation"
	"github.com/leapstack-labs/leapinsight/internal/llm"
	"github.com/leapstack-labs/leapinsight/internal/testutil"
)

func newSession(t *testing.T, opts ...SessionOption) (*Session, *llm.Scripted) {
	t.Helper()
	a, completer := newAssistant(t, llm.Script{Steps: []string{countStep, answerStep}})
	return NewSession(a, conversation.NewRegistry(), opts...), completer
}

func TestSession_AskRemembers(t *testing.T) {
	s, completer := newSession(t)
	ctx := context.Background()

	s.Ask(ctx, "s1", "How many active loans?")
	s.Ask(ctx, "s1", "And how many are closed?")

	msgs := s.ListConversation("s1")
	require.Len(t, msgs, 4)
	assert.Equal(t, "How many active loans?", msgs[0].Content)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "And how many are closed?", msgs[2].Content)

	requests := completer.Requests()
	last := requests[len(requests)-1].Prompt
	assert.Contains(t, last, "PREVIOUS CONVERSATION")
	assert.Contains(t, last, "User: How many active loans?")
	assert.Contains(t, last, "Assistant: We have 9 active loans.")

	assert.Empty(t, s.ListConversation("s2"), "sessions are isolated")
}

func TestSession_RejectedQuestionsNotRemembered(t *testing.T) {
	s, completer := newSession(t)

	reply := s.Ask(context.Background(), "s1", "")

	assert.Contains(t, reply.HTML, "Invalid Question")
	assert.Empty(t, s.ListConversation("s1"))
	assert.Equal(t, 0, completer.Calls())
}

func TestSession_ClearConversation(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	s.Ask(ctx, "s1", "How many active loans?")

	assert.Equal(t, ClearedMessage, s.ClearConversation("s1"))
	assert.Empty(t, s.ListConversation("s1"))
}

func TestSession_ExplicitHistory(t *testing.T) {
	s, completer := newSession(t)

	s.AskWithHistory(context.Background(), "s1", "How many active loans?", []conversation.Message{
		{Role: conversation.RoleUser, Content: "Earlier question about arrears"},
	})

	assert.Contains(t, completer.Requests()[0].Prompt, "User: Earlier question about arrears")
	assert.Len(t, s.ListConversation("s1"), 2)
}

func TestSession_History(t *testing.T) {
	archive, err := conversation.OpenArchive(":memory:", conversation.WithArchiveLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	defer archive.Close()

	s, _ := newSession(t, WithArchive(archive))
	ctx := context.Background()
	s.Ask(ctx, "s1", "How many active loans?")
	s.ClearConversation("s1")

	got, err := s.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1, "the archive outlives cleared memory")
	assert.Equal(t, "How many active loans?", got[0].Question)
	assert.Equal(t, "marker", got[0].Outcome)
	assert.Contains(t, got[0].Answer, "We have 9 active loans.")
}

func TestSession_HistoryWithoutArchive(t *testing.T) {
	s, _ := newSession(t)

	_, err := s.History(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestSession_WelcomeAndSuggestions(t *testing.T) {
	s, _ := newSession(t)

	assert.NotEmpty(t, s.Welcome())
	assert.NotEmpty(t, s.Suggestions())
}
