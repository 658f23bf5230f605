package trader

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"tradebot/internal/logger"
)

// symbolActor runs the decision cycles of one symbol strictly one at a time.
// Different symbols have different actors and run concurrently.
type symbolActor struct {
	symbol string
	m      *Manager

	msgCh  chan envelope
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newSymbolActor(symbol string, m *Manager, queue int) *symbolActor {
	return &symbolActor{
		symbol: symbol,
		m:      m,
		msgCh:  make(chan envelope, queue),
		stopCh: make(chan struct{}),
	}
}

func (a *symbolActor) start() {
	a.wg.Add(1)
	go a.runLoop()
}

func (a *symbolActor) stop() {
	a.once.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// send queues env and waits for its reply.
func (a *symbolActor) send(ctx context.Context, env envelope) (Submission, error) {
	env.reply = make(chan cycleReply, 1)
	select {
	case a.msgCh <- env:
	case <-ctx.Done():
		return Submission{}, ctx.Err()
	case <-a.stopCh:
		return Submission{}, fmt.Errorf("actor %s is stopped", a.symbol)
	}
	select {
	case r := <-env.reply:
		return r.sub, r.err
	case <-ctx.Done():
		// the cycle still finishes; only the caller stops waiting
		return Submission{}, ctx.Err()
	case <-a.stopCh:
		return Submission{}, fmt.Errorf("actor %s stopped during cycle", a.symbol)
	}
}

func (a *symbolActor) runLoop() {
	defer a.wg.Done()
	logger.Debugf("trader: actor %s started", a.symbol)
	for {
		select {
		case env := <-a.msgCh:
			a.handle(env)
		case <-a.stopCh:
			logger.Debugf("trader: actor %s stopping", a.symbol)
			return
		}
	}
}

// handle runs one cycle. A panic anywhere in the cycle becomes the cycle's
// error and the actor keeps serving.
func (a *symbolActor) handle(env envelope) {
	var (
		sub Submission
		err error
	)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("trader: panic in %s cycle %s: %v\n%s", a.symbol, env.traceID, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
		env.reply <- cycleReply{sub: sub, err: err}
		if dur := time.Since(start); dur > a.m.cfg.SlowCycle {
			logger.Warnf("trader: slow cycle %s %s took %v", a.symbol, env.traceID, dur)
		}
	}()
	sub, err = a.m.runCycle(env)
}
