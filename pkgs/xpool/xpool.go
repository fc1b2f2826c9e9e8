package xpool

import (
	"sync"
)

// Pool is a typed sync.Pool. reset, when set, runs on every value put back.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

func New[T any](fn func() T, reset func(T)) *Pool[T] {
	return &Pool[T]{
		pool:  sync.Pool{New: func() interface{} { return fn() }},
		reset: reset,
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(x T) {
	if p.reset != nil {
		p.reset(x)
	}
	p.pool.Put(x)
}
