package store

import (
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RuiFG/teleport/common/safe"
	"github.com/RuiFG/teleport/log"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"
)

var (
	ErrAlreadyRegistered  = errors.New("unit already registered")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrInvalidUnitName    = errors.New("invalid unit name")
)

const (
	hookLoad      = "load"
	hookUnload    = "unload"
	hookWriteBack = "write_back"
)

type registered struct {
	name string
	unit Unit
}

// Registry owns the KV and one instance of every registered unit type.
// Register, PostLoad and PostUnload are called from one control goroutine,
// the unit map is never modified after the write back scheduler started.
type Registry struct {
	logger    log.Logger
	scope     tally.Scope
	kv        KV
	types     map[reflect.Type]Unit
	units     []registered
	scheduler *Scheduler

	mergeEvery int64
	cycles     atomic.Int64
	closed     atomic.Bool
}

type Option func(r *Registry)

func WithLogger(logger log.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithScope(scope tally.Scope) Option {
	return func(r *Registry) { r.scope = scope }
}

func WithExecutor(executor Executor) Option {
	return func(r *Registry) { r.scheduler.executor = executor }
}

// WithCompactEvery compacts the KV after every n write back cycles, 0 disables it.
func WithCompactEvery(n int) Option {
	return func(r *Registry) { r.mergeEvery = int64(n) }
}

// NewRegistry takes ownership of kv, it is closed by Close.
func NewRegistry(kv KV, opts ...Option) *Registry {
	r := &Registry{
		logger: log.Named("registry"),
		scope:  tally.NoopScope,
		kv:     kv,
		types:  map[reflect.Type]Unit{},
	}
	r.scheduler = newScheduler(goExecutor{}, r.PostWriteBack)
	for _, opt := range opts {
		opt(r)
	}
	r.scheduler.logger = r.logger.Named("writeback")
	return r
}

// Register builds the single instance of T with factory. Registering T twice,
// or a unit whose name is already taken, fails and keeps the first instance.
func Register[T Unit](r *Registry, factory func(ctx Context) (T, error)) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if !r.scheduler.State().Idle() {
		return errors.WithMessage(ErrRegistrationClosed, "write back scheduler already started")
	}
	key := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := r.types[key]; ok {
		return errors.WithMessagef(ErrAlreadyRegistered, "type %s", key)
	}
	unit, err := factory(Context{
		KV:     r.kv,
		Logger: r.logger,
		Scope:  r.scope,
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to create unit %s", key)
	}
	if name := unit.Name(); name == "" || strings.Contains(name, keySeparator) {
		return errors.WithMessagef(ErrInvalidUnitName, "%q can't be empty or contain %q", name, keySeparator)
	}
	for _, u := range r.units {
		if u.name == unit.Name() {
			return errors.WithMessagef(ErrAlreadyRegistered, "name %s is used by another unit", u.name)
		}
	}
	r.types[key] = unit
	r.units = append(r.units, registered{name: unit.Name(), unit: unit})
	r.logger.Debugw("unit registered.", "unit", unit.Name(), "type", key.String())
	return nil
}

// Lookup returns the registered instance of T, false if T was never registered.
func Lookup[T Unit](r *Registry) (T, bool) {
	unit, ok := r.types[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		var zero T
		return zero, false
	}
	return unit.(T), true
}

func (r *Registry) Units() []string {
	names := make([]string, 0, len(r.units))
	for _, u := range r.units {
		names = append(names, u.name)
	}
	return names
}

// PostLoad calls OnLoad of every unit in registration order. A failing unit
// is logged and reported in the returned error, the others are still loaded.
func (r *Registry) PostLoad() error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.broadcast(hookLoad, Unit.OnLoad)
}

// PostUnload stops the write back scheduler, then calls OnUnload of every unit.
func (r *Registry) PostUnload() error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.scheduler.Stop()
	return r.broadcast(hookUnload, Unit.OnUnload)
}

func (r *Registry) PostWriteBack() error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.scope.Counter("writeback_cycles").Inc(1)
	stopwatch := r.scope.Timer("writeback_latency").Start()
	err := r.broadcast(hookWriteBack, Unit.OnWriteBack)
	stopwatch.Stop()

	if cycles := r.cycles.Add(1); r.mergeEvery > 0 && cycles%r.mergeEvery == 0 {
		if compacter, ok := r.kv.(Compacter); ok {
			if cErr := compacter.Compact(); errors.Is(cErr, ErrNothingToCompact) {
				r.logger.Debugw("store has nothing to compact.", "cycles", cycles)
			} else if cErr != nil {
				r.logger.Warnw("failed to compact store.", "err", cErr)
			} else {
				r.logger.Debugw("store compacted.", "cycles", cycles)
			}
		}
	}
	return err
}

func (r *Registry) broadcast(hook string, fn func(Unit) error) (err error) {
	for _, u := range r.units {
		if hookErr := safe.Run(func() error { return fn(u.unit) }); hookErr != nil {
			r.logger.Warnw("unit hook failed.", "unit", u.name, "hook", hook, "err", hookErr)
			r.scope.Tagged(map[string]string{"unit": u.name, "hook": hook}).
				Counter("lifecycle_failures").Inc(1)
			err = multierr.Append(err, errors.WithMessagef(hookErr, "unit %s %s", u.name, hook))
		}
	}
	return err
}

// Start runs PostWriteBack every interval on the executor.
func (r *Registry) Start(interval time.Duration) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.scheduler.Start(interval)
}

// Flush wakes the write back scheduler to run a cycle now.
func (r *Registry) Flush() {
	r.scheduler.Trigger()
}

func (r *Registry) Scheduler() *Scheduler {
	return r.scheduler
}

// Close stops the write back scheduler before releasing the KV, no write
// back can run against a closed store. Closing twice is a no-op.
func (r *Registry) Close() error {
	if r.closed.Load() {
		return nil
	}
	r.scheduler.Stop()
	r.closed.Store(true)
	return errors.WithMessage(r.kv.Close(), "failed to close store")
}
