package permission

import (
	"testing"

	"github.com/RuiFG/teleport/log"
	"github.com/RuiFG/teleport/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

func newUnit(t *testing.T, kv store.KV) *Unit {
	u, err := New()(store.Context{KV: kv, Logger: log.Nop(), Scope: tally.NoopScope})
	require.NoError(t, err)
	require.NoError(t, u.OnLoad())
	return u
}

type failingKV struct {
	store.KV
	fail bool
}

func (f *failingKV) Put(key, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.KV.Put(key, value)
}

func TestGrantIsWrittenThrough(t *testing.T) {
	kv := store.NewMemoryKV()
	u := newUnit(t, kv)
	require.NoError(t, u.Grant("alice", UnlimitedHome))
	require.NoError(t, u.Grant("alice", UnlimitedHome))
	require.NoError(t, u.Grant("alice", BypassCooldown))
	assert.True(t, u.HasPermission("alice", UnlimitedHome))
	assert.False(t, u.HasPermission("bob", UnlimitedHome))
	assert.Equal(t, []Permission{BypassCooldown, UnlimitedHome}, u.Permissions("alice"))

	_, found, err := kv.Get(store.Key(Name, "alice"))
	require.NoError(t, err)
	assert.True(t, found)

	reloaded := newUnit(t, kv.Reopen())
	assert.Equal(t, []Permission{BypassCooldown, UnlimitedHome}, reloaded.Permissions("alice"))
}

func TestRevoke(t *testing.T) {
	kv := store.NewMemoryKV()
	u := newUnit(t, kv)
	require.NoError(t, u.Grant("alice", AdminHome))
	require.NoError(t, u.Revoke("alice", AdminHome))
	require.NoError(t, u.Revoke("alice", AdminHome))
	assert.False(t, u.HasPermission("alice", AdminHome))
	assert.Empty(t, u.Permissions("alice"))

	_, found, err := kv.Get(store.Key(Name, "alice"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnknownPermission(t *testing.T) {
	u := newUnit(t, store.NewMemoryKV())
	assert.True(t, errors.Is(u.Grant("alice", Permission("fly")), ErrUnknownPermission))
}

func TestFailedWriteLeavesCache(t *testing.T) {
	kv := &failingKV{KV: store.NewMemoryKV()}
	u := newUnit(t, kv)
	kv.fail = true
	assert.Error(t, u.Grant("alice", UnlimitedHome))
	assert.False(t, u.HasPermission("alice", UnlimitedHome))
	kv.fail = false
	require.NoError(t, u.Grant("alice", UnlimitedHome))
	assert.True(t, u.HasPermission("alice", UnlimitedHome))
}

func TestLoadSkipsCorruptRecord(t *testing.T) {
	kv := store.NewMemoryKV()
	require.NoError(t, newUnit(t, kv).Grant("alice", UnlimitedHome))
	require.NoError(t, kv.Put(store.Key(Name, "mallory"), []byte("garbage")))

	u, err := New()(store.Context{KV: kv, Logger: log.Nop(), Scope: tally.NoopScope})
	require.NoError(t, err)
	err = u.OnLoad()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mallory")
	assert.True(t, u.HasPermission("alice", UnlimitedHome))
	assert.NoError(t, u.OnWriteBack())
	assert.NoError(t, u.OnUnload())
}
