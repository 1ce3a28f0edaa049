package permission

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"

	"github.com/RuiFG/teleport/log"
	"github.com/RuiFG/teleport/store"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const Name = "permission"

var (
	ErrUnknownPermission = errors.New("unknown permission")
)

type Permission string

const (
	// UnlimitedHome lifts the home count limit.
	UnlimitedHome  Permission = "unlimited_home"
	AdminHome      Permission = "admin_home"
	BypassCooldown Permission = "bypass_cooldown"
)

var known = map[Permission]struct{}{
	UnlimitedHome:  {},
	AdminHome:      {},
	BypassCooldown: {},
}

func (p Permission) Valid() bool {
	_, ok := known[p]
	return ok
}

type record struct {
	Permissions []Permission
}

// Unit stores granted permissions per player. Grant and Revoke write through:
// the KV is updated first and the cache only when the write succeeded.
type Unit struct {
	logger log.Logger
	kv     store.KV

	mutex  sync.RWMutex
	grants map[string]map[Permission]struct{}
}

func New() func(ctx store.Context) (*Unit, error) {
	return func(ctx store.Context) (*Unit, error) {
		ctx = ctx.WithDefaults()
		return &Unit{
			logger: ctx.Logger.Named(Name),
			kv:     ctx.KV,
			grants: map[string]map[Permission]struct{}{},
		}, nil
	}
}

func (u *Unit) Name() string {
	return Name
}

func sorted(set map[Permission]struct{}) []Permission {
	permissions := make([]Permission, 0, len(set))
	for p := range set {
		permissions = append(permissions, p)
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i] < permissions[j] })
	return permissions
}

func encode(set map[Permission]struct{}) ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(record{Permissions: sorted(set)}); err != nil {
		return nil, errors.WithMessage(err, "failed to encode permissions")
	}
	return buffer.Bytes(), nil
}

func decode(b []byte) (map[Permission]struct{}, error) {
	var r record
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return nil, errors.WithMessage(err, "failed to decode permissions")
	}
	set := make(map[Permission]struct{}, len(r.Permissions))
	for _, p := range r.Permissions {
		set[p] = struct{}{}
	}
	return set, nil
}

// persist must be called with the write lock held.
func (u *Unit) persist(player string, set map[Permission]struct{}) error {
	key := store.Key(Name, player)
	if len(set) == 0 {
		return u.kv.Delete(key)
	}
	value, err := encode(set)
	if err != nil {
		return err
	}
	return u.kv.Put(key, value)
}

func (u *Unit) Grant(player string, permission Permission) error {
	if !permission.Valid() {
		return errors.WithMessagef(ErrUnknownPermission, "%q", permission)
	}
	u.mutex.Lock()
	defer u.mutex.Unlock()
	current := u.grants[player]
	if _, ok := current[permission]; ok {
		return nil
	}
	next := make(map[Permission]struct{}, len(current)+1)
	for p := range current {
		next[p] = struct{}{}
	}
	next[permission] = struct{}{}
	if err := u.persist(player, next); err != nil {
		return errors.WithMessagef(err, "failed to grant %s to %s", permission, player)
	}
	u.grants[player] = next
	return nil
}

func (u *Unit) Revoke(player string, permission Permission) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	current := u.grants[player]
	if _, ok := current[permission]; !ok {
		return nil
	}
	next := make(map[Permission]struct{}, len(current))
	for p := range current {
		if p != permission {
			next[p] = struct{}{}
		}
	}
	if err := u.persist(player, next); err != nil {
		return errors.WithMessagef(err, "failed to revoke %s from %s", permission, player)
	}
	if len(next) == 0 {
		delete(u.grants, player)
	} else {
		u.grants[player] = next
	}
	return nil
}

func (u *Unit) HasPermission(player string, permission Permission) bool {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	_, ok := u.grants[player][permission]
	return ok
}

func (u *Unit) Permissions(player string) []Permission {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	return sorted(u.grants[player])
}

func (u *Unit) OnLoad() error {
	loaded := map[string]map[Permission]struct{}{}
	var decodeErr error
	if err := u.kv.Scan(store.Prefix(Name), func(key, value []byte) bool {
		player := store.TrimPrefix(Name, key)
		set, err := decode(value)
		if err != nil {
			decodeErr = multierr.Append(decodeErr, errors.WithMessagef(err, "player %s", player))
			return true
		}
		loaded[player] = set
		return true
	}); err != nil {
		return errors.WithMessage(err, "failed to load permissions")
	}
	u.mutex.Lock()
	u.grants = loaded
	u.mutex.Unlock()
	u.logger.Infow("permissions loaded.", "players", len(loaded))
	return decodeErr
}

// OnWriteBack has nothing to flush, every change is already in the KV.
func (u *Unit) OnWriteBack() error {
	return nil
}

func (u *Unit) OnUnload() error {
	return nil
}
