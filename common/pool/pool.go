package pool

import (
	"github.com/RuiFG/teleport/log"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Pool is the shared worker pool background storage work is submitted to.
type Pool struct {
	pool *ants.Pool
}

func New(size int, logger log.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid pool size %d", size)
	}
	p, err := ants.NewPool(size, ants.WithPanicHandler(func(r interface{}) {
		logger.Errorw("task panicked.", "panic", r)
	}))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create worker pool")
	}
	return &Pool{pool: p}, nil
}

func (p *Pool) Submit(task func()) error {
	return p.pool.Submit(task)
}

func (p *Pool) Running() int {
	return p.pool.Running()
}

func (p *Pool) Release() {
	p.pool.Release()
}
