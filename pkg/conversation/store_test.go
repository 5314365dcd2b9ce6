package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func setupStore(t *testing.T) (*Store, models.User) {
	models.InitializeTestDB(t)
	t.Cleanup(func() { db.Close() })

	user := models.User{}
	require.NoError(t, db.Get().Create(&user).Error)

	return NewStore(db.Get(), 24*time.Hour, time.Hour), user
}

func TestStore_CreateAndGet(t *testing.T) {
	store, user := setupStore(t)

	conv, err := store.Create(user.ID, "Checking SOL Balance", "mistral-large-latest")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conv.ID)

	got, err := store.Get(user.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checking SOL Balance", got.Title)
	assert.False(t, got.Archived)
}

func TestStore_GetScopedToOwner(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "private", "")
	require.NoError(t, err)

	other := models.User{}
	require.NoError(t, db.Get().Create(&other).Error)

	_, err = store.Get(other.ID, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStore_AppendKeepsOrder(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "ordering", "")
	require.NoError(t, err)

	require.NoError(t, store.Append(conv.ID,
		NewUserMessage("first"),
		NewAssistantMessage("second", nil),
		NewUserMessage("third"),
	))

	msgs, err := store.Messages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestStore_AppendBumpsActivity(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "activity", "")
	require.NoError(t, err)

	before := conv.LastActivityAt
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Append(conv.ID, NewUserMessage("hi")))

	got, err := store.Get(user.ID, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.After(before))
}

func TestStore_ConcurrentAppendsAllLand(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "concurrent", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Append(conv.ID, NewUserMessage("msg")))
		}()
	}
	wg.Wait()

	msgs, err := store.Messages(conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
}

func TestStore_AppendToArchivedConversationRejected(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "dormant", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, NewUserMessage("before archival")))

	require.NoError(t, db.Get().Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("archived", true).Error)

	err = store.Append(conv.ID, NewUserMessage("too late"))
	assert.ErrorIs(t, err, ErrConversationArchived)

	msgs, err := store.Messages(conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	err = store.Append(uuid.New(), NewUserMessage("nowhere"))
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStore_ListCountsAndSorts(t *testing.T) {
	store, user := setupStore(t)

	older, err := store.Create(user.ID, "older", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(older.ID, NewUserMessage("a"), NewUserMessage("b")))

	time.Sleep(10 * time.Millisecond)
	newer, err := store.Create(user.ID, "newer", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(newer.ID, NewUserMessage("c")))

	summaries, err := store.List(user.ID, false)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].Title)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Equal(t, "older", summaries[1].Title)
	assert.Equal(t, 2, summaries[1].MessageCount)
}

func TestStore_ListExcludesArchived(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "to archive", "")
	require.NoError(t, err)

	require.NoError(t, db.Get().Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("archived", true).Error)

	summaries, err := store.List(user.ID, false)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	summaries, err = store.List(user.ID, true)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestStore_UpdateTitle(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "New Conversation", "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateTitle(user.ID, conv.ID, "USDC to SOL Swap"))

	got, err := store.Get(user.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "USDC to SOL Swap", got.Title)

	err = store.UpdateTitle(user.ID, uuid.New(), "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStore_DeleteRemovesMessages(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "doomed", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, NewUserMessage("gone soon")))

	require.NoError(t, store.Delete(user.ID, conv.ID))

	_, err = store.Get(user.ID, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	var count int64
	require.NoError(t, db.Get().Model(&models.Message{}).
		Where("conversation_id = ?", conv.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStore_ActiveMessagesSkipSummarized(t *testing.T) {
	store, user := setupStore(t)
	conv, err := store.Create(user.ID, "summarized", "")
	require.NoError(t, err)

	first := NewUserMessage("old news")
	second := NewUserMessage("still relevant")
	require.NoError(t, store.Append(conv.ID, first, second))

	require.NoError(t, store.MarkSummarized([]uuid.UUID{first.ID}))

	active, err := store.ActiveMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "still relevant", active[0].Content)

	// the full history still has both
	msgs, err := store.Messages(conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestStore_ArchiveIdleConversations(t *testing.T) {
	store, user := setupStore(t)
	idle, err := store.Create(user.ID, "idle", "")
	require.NoError(t, err)
	active, err := store.Create(user.ID, "active", "")
	require.NoError(t, err)

	require.NoError(t, db.Get().Model(&models.Conversation{}).
		Where("id = ?", idle.ID).
		Update("last_activity_at", time.Now().UTC().Add(-25*time.Hour)).Error)

	store.archiveIdle()

	got, err := store.Get(user.ID, idle.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	got, err = store.Get(user.ID, active.ID)
	require.NoError(t, err)
	assert.False(t, got.Archived)
}
