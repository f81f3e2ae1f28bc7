package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoval/parley/internal/domain"
)

func mustSeed(t *testing.T, s *Store) (alice, bob *domain.User, conv *domain.Conversation) {
	t.Helper()
	alice, err := s.FindOrCreateUser("Alice")
	require.NoError(t, err)
	bob, err = s.FindOrCreateUser("Bob")
	require.NoError(t, err)
	conv, err = s.FindOrCreateConversation(alice.ID, bob.ID)
	require.NoError(t, err)
	return alice, bob, conv
}

func TestFindOrCreateUserIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	first, err := s.FindOrCreateUser("Alice")
	require.NoError(t, err)
	second, err := s.FindOrCreateUser("Alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateUserValidatesName(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.FindOrCreateUser("")
	assert.ErrorIs(t, err, domain.ErrNameEmpty)
}

func TestSearchUsers(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	mustSeed(t, s)

	hits := s.SearchUsers("ali")
	require.Len(t, hits, 1)
	assert.Equal(t, "Alice", hits[0].Name)

	assert.Len(t, s.SearchUsers(""), 2)
	assert.Empty(t, s.SearchUsers("zeb"))
}

func TestConversationIsSharedBetweenBothOrders(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, bob, conv := mustSeed(t, s)

	same, err := s.FindOrCreateConversation(bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, same.ID)
}

func TestConversationRequiresKnownUsers(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, _, _ := mustSeed(t, s)

	_, err = s.FindOrCreateConversation(alice.ID, "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestAppendAndListMessages(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, bob, conv := mustSeed(t, s)

	m1, err := domain.NewMessage(conv.ID, alice.ID, "hi", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(m1, nil))

	m2, err := domain.NewMessage(conv.ID, bob.ID, "hello", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(m2, nil))

	msgs := s.Messages(conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)

	last, ok := s.LastMessage(conv.ID)
	require.True(t, ok)
	assert.Equal(t, m2.ID, last.ID)
}

func TestAppendMessageGuards(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, _, conv := mustSeed(t, s)

	stranger, err := s.FindOrCreateUser("Mallory")
	require.NoError(t, err)

	bad, err := domain.NewMessage("no-such-conv", alice.ID, "hi", "")
	require.NoError(t, err)
	assert.ErrorIs(t, s.AppendMessage(bad, nil), ErrUnknownConversation)

	outsider, err := domain.NewMessage(conv.ID, stranger.ID, "hi", "")
	require.NoError(t, err)
	assert.ErrorIs(t, s.AppendMessage(outsider, nil), ErrNotMember)
}

func TestSelfConversationRejected(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, _, _ := mustSeed(t, s)

	_, err = s.FindOrCreateConversation(alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestAppendMessageNotifiesRecipient(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, bob, conv := mustSeed(t, s)

	var gotMsg *domain.Message
	var gotTo domain.UserID
	msg, err := domain.NewMessage(conv.ID, alice.ID, "hi", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(msg, func(m *domain.Message, to domain.UserID) {
		gotMsg = m
		gotTo = to
	}))

	require.NotNil(t, gotMsg)
	assert.Equal(t, msg.ID, gotMsg.ID)
	assert.Equal(t, bob.ID, gotTo)
}

func TestAppendMessageNoNotifyOnRejection(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, _, _ := mustSeed(t, s)

	notified := false
	bad, err := domain.NewMessage("no-such-conv", alice.ID, "hi", "")
	require.NoError(t, err)
	require.Error(t, s.AppendMessage(bad, func(*domain.Message, domain.UserID) { notified = true }))
	assert.False(t, notified)
}

func TestConcurrentAppendsNotifyInStoreOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, bob, conv := mustSeed(t, s)

	var mu sync.Mutex
	var delivered []domain.MessageID
	notify := func(m *domain.Message, _ domain.UserID) {
		mu.Lock()
		delivered = append(delivered, m.ID)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		sender := alice.ID
		if i%2 == 1 {
			sender = bob.ID
		}
		msg, err := domain.NewMessage(conv.ID, sender, "m", "")
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendMessage(msg, notify))
		}()
	}
	wg.Wait()

	stored := s.Messages(conv.ID)
	require.Len(t, stored, 16)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 16)
	for i, m := range stored {
		assert.Equal(t, m.ID, delivered[i])
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	alice, _, conv := mustSeed(t, s)
	msg, err := domain.NewMessage(conv.ID, alice.ID, "still here", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(msg, nil))

	reopened, err := Open(dir)
	require.NoError(t, err)

	u, ok := reopened.GetUser(alice.ID)
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Name)

	msgs := reopened.Messages(conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here", msgs[0].Text)
}

func TestConversationsOf(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	alice, _, conv := mustSeed(t, s)

	convs := s.ConversationsOf(alice.ID)
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)

	assert.Empty(t, s.ConversationsOf("ghost"))
}
