package localstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schadenschat/pkg/errors"
)

type record struct {
	ID    string `json:"id"`
	Owner string `json:"owner,omitempty"`
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestStore_AppendListSurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)
	keys := Keys{App: "schadens-chat"}

	require.NoError(t, store.Append(keys.Requests(), record{ID: "a"}))
	require.NoError(t, store.Append(keys.Requests(), record{ID: "b"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := ListOf[record](reopened, keys.Requests())
	require.NoError(t, err)
	assert.Equal(t, []record{{ID: "a"}, {ID: "b"}}, got)
}

func TestStore_RemoveAndReplace(t *testing.T) {
	store, _ := openTestStore(t)
	key := "schadens-chat-requests"

	require.NoError(t, store.Replace(key, []record{{ID: "a"}, {ID: "b", Owner: "u1"}, {ID: "c"}}))

	removed, err := store.Remove(key, func(raw json.RawMessage) bool {
		var r record
		_ = json.Unmarshal(raw, &r)
		return r.Owner == ""
	})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := ListOf[record](store, key)
	require.NoError(t, err)
	assert.Equal(t, []record{{ID: "b", Owner: "u1"}}, got)

	require.NoError(t, store.Replace(key, []record{}))
	got, err = ListOf[record](store, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_UpdateOfErrorLeavesRecordsUntouched(t *testing.T) {
	store, _ := openTestStore(t)
	key := "k"
	require.NoError(t, store.Append(key, record{ID: "a"}))

	err := UpdateOf[record](store, key, func(rs []record) ([]record, error) {
		return nil, errors.Conflict("stop")
	})
	assert.True(t, errors.Is(err, errors.CodeConflict))

	got, err := ListOf[record](store, key)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_GetPutDelete(t *testing.T) {
	store, _ := openTestStore(t)
	keys := Keys{App: "schadens-chat"}

	var out record
	ok, err := store.Get(keys.User(), &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(keys.User(), record{ID: "u1"}))
	ok, err = store.Get(keys.User(), &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", out.ID)

	require.NoError(t, store.Delete(keys.User(), keys.Workshop()))
	ok, err = store.Get(keys.User(), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptValueIsPersistenceError(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, upsert(store.db, "broken", "{not json"))

	_, err := store.List("broken")
	assert.True(t, errors.Is(err, errors.CodePersistence))
}

func TestKeys(t *testing.T) {
	keys := Keys{App: "schadens-chat"}
	assert.Equal(t, "schadens-chat-messages-r1-o1", keys.Messages("r1", "o1"))
	assert.Equal(t, "schadens-chat-messages-r1", keys.Messages("r1", ""))
	assert.Equal(t, "schadens-chat-subscription-ws1", keys.Subscription("ws1"))
}
