package home

import (
	"sort"
	"sync"
	"time"

	"github.com/RuiFG/teleport/log"
	"github.com/RuiFG/teleport/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"
)

const Name = "home"

type Options struct {
	// NameLength is the maximum number of characters of a home name, 0 means unlimited.
	NameLength int
	// Now is the clock used for created and modified stamps.
	Now func() time.Time
}

var DefaultOptions = Options{
	NameLength: 32,
	Now:        time.Now,
}

// Unit keeps every player's homes in memory. Mutations only mark the owner
// dirty, the KV is updated on the next write back. A mutation acknowledged
// before a write back starts is durable after it, later ones after the next.
type Unit struct {
	logger  log.Logger
	kv      store.KV
	scope   tally.Scope
	options Options

	mutex sync.RWMutex
	homes map[string][]Home
	dirty map[string]struct{}

	//serializes write backs so an older snapshot never overwrites a newer one
	flushMutex sync.Mutex
}

// New returns the factory to register the unit with.
func New(options Options) func(ctx store.Context) (*Unit, error) {
	return func(ctx store.Context) (*Unit, error) {
		ctx = ctx.WithDefaults()
		if options.Now == nil {
			options.Now = time.Now
		}
		if options.NameLength < 0 {
			return nil, errors.Errorf("invalid home name length %d", options.NameLength)
		}
		return &Unit{
			logger:  ctx.Logger.Named(Name),
			kv:      ctx.KV,
			scope:   ctx.Scope.SubScope(Name),
			options: options,
			homes:   map[string][]Home{},
			dirty:   map[string]struct{}{},
		}, nil
	}
}

func (u *Unit) Name() string {
	return Name
}

func (u *Unit) stamp() time.Time {
	return time.UnixMilli(u.options.Now().UnixMilli())
}

func indexOf(homes []Home, name string) int {
	for i, home := range homes {
		if home.Name == name {
			return i
		}
	}
	return -1
}

// AddHome stores a new home for owner, CreatedAt and ModifiedAt are set to now.
func (u *Unit) AddHome(owner string, home Home) error {
	if err := validateName(home.Name, u.options.NameLength); err != nil {
		return err
	}
	u.mutex.Lock()
	defer u.mutex.Unlock()
	homes := u.homes[owner]
	if indexOf(homes, home.Name) >= 0 {
		return errors.WithMessagef(ErrHomeExists, "player %s home %s", owner, home.Name)
	}
	now := u.stamp()
	home.CreatedAt, home.ModifiedAt = now, now
	u.homes[owner] = append(homes, home)
	u.dirty[owner] = struct{}{}
	return nil
}

func (u *Unit) HasHome(owner, name string) bool {
	_, ok := u.GetHome(owner, name)
	return ok
}

func (u *Unit) GetHome(owner, name string) (Home, bool) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	homes := u.homes[owner]
	if i := indexOf(homes, name); i >= 0 {
		return homes[i], true
	}
	return Home{}, false
}

// GetHomes returns a copy of owner's homes in creation order.
func (u *Unit) GetHomes(owner string) []Home {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	return append([]Home(nil), u.homes[owner]...)
}

func (u *Unit) HomeCount(owner string) int {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	return len(u.homes[owner])
}

// Owners returns the sorted names of players with at least one home.
func (u *Unit) Owners() []string {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	owners := make([]string, 0, len(u.homes))
	for owner := range u.homes {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// UpdateHome replaces the home called name, renaming it when home.Name differs.
// CreatedAt is kept.
func (u *Unit) UpdateHome(owner, name string, home Home) error {
	if err := validateName(home.Name, u.options.NameLength); err != nil {
		return err
	}
	u.mutex.Lock()
	defer u.mutex.Unlock()
	homes := u.homes[owner]
	i := indexOf(homes, name)
	if i < 0 {
		return errors.WithMessagef(ErrHomeNotFound, "player %s home %s", owner, name)
	}
	if home.Name != name && indexOf(homes, home.Name) >= 0 {
		return errors.WithMessagef(ErrHomeExists, "player %s home %s", owner, home.Name)
	}
	home.CreatedAt = homes[i].CreatedAt
	home.ModifiedAt = u.stamp()
	updated := append([]Home(nil), homes...)
	updated[i] = home
	u.homes[owner] = updated
	u.dirty[owner] = struct{}{}
	return nil
}

func (u *Unit) RemoveHome(owner, name string) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	homes := u.homes[owner]
	i := indexOf(homes, name)
	if i < 0 {
		return errors.WithMessagef(ErrHomeNotFound, "player %s home %s", owner, name)
	}
	updated := make([]Home, 0, len(homes)-1)
	updated = append(updated, homes[:i]...)
	updated = append(updated, homes[i+1:]...)
	if len(updated) == 0 {
		delete(u.homes, owner)
	} else {
		u.homes[owner] = updated
	}
	u.dirty[owner] = struct{}{}
	return nil
}

// OnLoad replaces the cache with the KV content. Owners whose record can't be
// decoded are skipped and reported, the rest is loaded.
func (u *Unit) OnLoad() error {
	loaded := map[string][]Home{}
	var decodeErr error
	if err := u.kv.Scan(store.Prefix(Name), func(key, value []byte) bool {
		owner := store.TrimPrefix(Name, key)
		homes, err := decodeHomes(value)
		if err != nil {
			decodeErr = multierr.Append(decodeErr, errors.WithMessagef(err, "failed to decode homes of %s", owner))
			return true
		}
		if len(homes) > 0 {
			loaded[owner] = homes
		}
		return true
	}); err != nil {
		return errors.WithMessage(err, "failed to load homes")
	}
	u.mutex.Lock()
	u.homes = loaded
	u.dirty = map[string]struct{}{}
	u.mutex.Unlock()
	u.logger.Infow("homes loaded.", "owners", len(loaded))
	return decodeErr
}

// OnWriteBack writes the homes of every dirty owner in one batch. On failure
// the owners are marked dirty again and retried on the next cycle.
func (u *Unit) OnWriteBack() error {
	u.flushMutex.Lock()
	defer u.flushMutex.Unlock()

	u.mutex.Lock()
	if len(u.dirty) == 0 {
		u.mutex.Unlock()
		return nil
	}
	snapshot := make(map[string][]Home, len(u.dirty))
	for owner := range u.dirty {
		snapshot[owner] = u.homes[owner]
	}
	u.dirty = map[string]struct{}{}
	u.mutex.Unlock()

	if err := u.kv.Update(func(batch store.Batch) error {
		for owner, homes := range snapshot {
			key := store.Key(Name, owner)
			if len(homes) == 0 {
				if err := batch.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := batch.Put(key, encodeHomes(homes)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		u.mutex.Lock()
		for owner := range snapshot {
			u.dirty[owner] = struct{}{}
		}
		u.mutex.Unlock()
		return errors.WithMessagef(err, "failed to write back %d owners", len(snapshot))
	}
	u.scope.Counter("flushed_owners").Inc(int64(len(snapshot)))
	u.logger.Debugw("homes written back.", "owners", len(snapshot))
	return nil
}

func (u *Unit) OnUnload() error {
	return u.OnWriteBack()
}
