package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/board"
)

var ErrPoolClosed = errors.New("validator pool closed")

type Request struct {
	Rules Ruleset
	Chain []board.Coord
	Board board.Snapshot
}

type Outcome struct {
	Result Result
	Err    error
}

// Async is the contract sessions depend on: a validation is submitted and its
// outcome arrives later on the returned channel, exactly once.
type Async interface {
	Validate(ctx context.Context, req Request) <-chan Outcome
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan Outcome
}

// Pool runs validations on a fixed set of worker goroutines so a slow check
// never runs on a session's own goroutine.
type Pool struct {
	jobs   chan job
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(parent context.Context, workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		jobs:   make(chan job, workers*4),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) Validate(ctx context.Context, req Request) <-chan Outcome {
	reply := make(chan Outcome, 1)
	if p.ctx.Err() != nil {
		reply <- Outcome{Err: ErrPoolClosed}
		return reply
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		reply <- Outcome{Err: ctx.Err()}
	case <-p.ctx.Done():
		reply <- Outcome{Err: ErrPoolClosed}
	}
	return reply
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.jobs:
			if err := j.ctx.Err(); err != nil {
				j.reply <- Outcome{Err: err}
				continue
			}
			j.reply <- p.run(j.req)
		}
	}
}

func (p *Pool) run(req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("validator panicked", zap.Any("panic", r), zap.String("rules", string(req.Rules)))
			out = Outcome{Err: fmt.Errorf("validator panic: %v", r)}
		}
	}()
	return Outcome{Result: Check(req.Rules, req.Chain, req.Board)}
}

// Close stops the workers. Later submissions resolve with ErrPoolClosed.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

// Inline validates on the caller's goroutine behind the same asynchronous contract.
type Inline struct{}

func (Inline) Validate(_ context.Context, req Request) <-chan Outcome {
	reply := make(chan Outcome, 1)
	reply <- Outcome{Result: Check(req.Rules, req.Chain, req.Board)}
	return reply
}
