package generator

import (
	"context"
	"sync"

	"ragpipe/internal/domain"
)

// Lazy defers constructing a generator until the first Generate call, so a
// missing credential surfaces when an answer is requested rather than at
// startup. A failed construction is retried on the next call.
type Lazy struct {
	name    string
	factory func() (domain.Generator, error)

	mu  sync.Mutex
	gen domain.Generator
}

var _ domain.Generator = (*Lazy)(nil)

// NewLazy wraps factory. name is reported before the generator exists.
func NewLazy(name string, factory func() (domain.Generator, error)) *Lazy {
	return &Lazy{name: name, factory: factory}
}

func (l *Lazy) Name() string { return l.name }

func (l *Lazy) Generate(ctx context.Context, question string, passages []domain.Chunk, opts domain.GenerateOptions) (string, error) {
	gen, err := l.get()
	if err != nil {
		return "", err
	}
	return gen.Generate(ctx, question, passages, opts)
}

func (l *Lazy) get() (domain.Generator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != nil {
		return l.gen, nil
	}
	gen, err := l.factory()
	if err != nil {
		return nil, err
	}
	l.gen = gen
	return gen, nil
}
