package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("server: executor pool stopped")

// job is a unit of work run on one of the pool's goroutines.
type job struct {
	fn   func() (interface{}, error)
	done chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// Pool bounds the number of executors running at once. Each job builds and
// drives its own vm.Executor, so jobs share nothing but read-only state.
type Pool struct {
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewPool starts size worker goroutines. size < 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, turning a panic into an error.
func execute(fn func() (interface{}, error)) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			result = jobResult{err: fmt.Errorf("server: job panicked: %v", r)}
		}
	}()
	v, err := fn()
	return jobResult{value: v, err: err}
}

// Do waits for a free worker, runs fn on it and returns its result. If ctx
// ends first Do returns ctx.Err(); a job that has already started runs to
// completion and its result is discarded.
func (p *Pool) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	j := job{fn: fn, done: make(chan jobResult, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolStopped
	}

	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the workers after their current jobs finish.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
