package game

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rugroulette/internal/logging"
)

const commandQueueSize = 1000

// Options configures an Engine. Countdowns are in ticks, one tick being a
// second with the default TickInterval.
type Options struct {
	Pool            PoolConfig
	StartingBalance decimal.Decimal
	FirstCountdown  int
	CountdownMin    int
	CountdownMax    int // exclusive
	ResolveDelay    time.Duration
	TickInterval    time.Duration

	Rand   *rand.Rand
	Sink   Sink
	Logger zerolog.Logger
	Now    func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Pool:            DefaultPoolConfig(),
		StartingBalance: decimal.NewFromInt(1000),
		FirstCountdown:  300,
		CountdownMin:    120,
		CountdownMax:    420,
		ResolveDelay:    5 * time.Second,
		TickInterval:    time.Second,
	}
}

type command func(e *Engine)

// Engine owns the current pool and every session. All mutations run on a
// single loop goroutine: player actions arrive as commands and the countdown
// as ticks, so no two of them ever interleave.
type Engine struct {
	opts      Options
	out       Broadcaster
	sinks     *sinkWorker
	rng       *rand.Rand
	now       func() time.Time
	log       zerolog.Logger
	commands  chan command
	stopChan  chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	startedAt time.Time

	// loop-owned
	pool      *Pool
	sessions  *Registry
	countdown bool
	rollover  *time.Timer
	rolloverC <-chan time.Time

	stateMutex   sync.RWMutex
	snapshot     Pool
	sessionCount int
}

func NewEngine(opts Options, out Broadcaster) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.CountdownMax <= opts.CountdownMin {
		opts.CountdownMax = opts.CountdownMin + 1
	}
	e := &Engine{
		opts:     opts,
		out:      out,
		rng:      opts.Rand,
		now:      opts.Now,
		log:      logging.WithComponent(opts.Logger, "engine"),
		commands: make(chan command, commandQueueSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		sessions: NewRegistry(opts.StartingBalance),
	}
	if e.rng == nil {
		e.rng = NewRand()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.Sink != nil {
		e.sinks = newSinkWorker(opts.Sink, e.log)
	}
	return e
}

// Start creates the first pool and runs the loop until Stop.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.startedAt = e.now()
		e.startNewPool(e.opts.FirstCountdown)
		e.started.Store(true)
		go e.run()
	})
}

// Stop ends the loop and flushes pending sink records. In-memory state is
// discarded with the engine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.started.Load() {
			<-e.done
		} else {
			close(e.done)
		}
		if e.sinks != nil {
			e.sinks.close()
		}
		e.log.Info().Msg("Engine stopped")
	})
}

func (e *Engine) run() {
	defer close(e.done)

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			if e.rollover != nil {
				e.rollover.Stop()
			}
			return
		case cmd := <-e.commands:
			cmd(e)
		case <-ticker.C:
			e.tick()
		case <-e.rolloverC:
			e.rollover, e.rolloverC = nil, nil
			e.startNewPool(e.nextCountdown())
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (e *Engine) do(fn func()) error {
	finished := make(chan struct{})
	cmd := func(e *Engine) {
		fn()
		close(finished)
	}

	select {
	case e.commands <- cmd:
	case <-e.done:
		return ErrEngineStopped
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrEngineStopped
		}
	}
}

func (e *Engine) nextCountdown() int {
	return e.opts.CountdownMin + e.rng.IntN(e.opts.CountdownMax-e.opts.CountdownMin)
}

func (e *Engine) startNewPool(countdown int) {
	e.pool = NewPool(e.opts.Pool, countdown)
	e.countdown = true
	e.publish()

	e.log.Info().Str("pool_id", e.pool.ID).Int("time_remaining", countdown).Msg("New pool")
	e.out.Broadcast(Event{Type: MsgNewPool, Data: e.pool.Clone()})
}

func (e *Engine) tick() {
	if !e.countdown || e.pool.Status != PoolStatusWaiting || e.pool.TimeRemaining <= 0 {
		return
	}

	e.pool.TimeRemaining--
	e.publish()
	e.out.Broadcast(Event{Type: MsgPoolUpdated, Data: e.pool.Clone()})

	if e.pool.TimeRemaining == 0 {
		e.resolvePool()
	}
}

func (e *Engine) resolvePool() {
	event, ok := e.pool.Resolve(e.rng, e.now())
	if !ok {
		e.log.Info().Str("pool_id", e.pool.ID).Msg("Pool expired empty")
		e.startNewPool(e.nextCountdown())
		return
	}
	e.countdown = false

	if s, err := e.sessions.Get(event.Winner.SessionID); err == nil {
		s.Credit(event.TotalPrize)
	} else {
		e.log.Warn().Str("pool_id", e.pool.ID).Str("player_id", event.Winner.ID).Msg("Winner session gone, prize not credited")
	}
	e.publish()

	e.log.Info().
		Str("pool_id", e.pool.ID).
		Str("winner", event.Winner.Address).
		Str("prize", event.TotalPrize.String()).
		Int("players", len(e.pool.Players)).
		Msg("Rug pulled")

	resolved := e.pool.Clone()
	e.out.Broadcast(Event{Type: MsgRugEvent, Data: resolved})
	if e.sinks != nil {
		e.sinks.rug(resolved)
	}

	e.rollover = time.NewTimer(e.opts.ResolveDelay)
	e.rolloverC = e.rollover.C
}

// publish refreshes the snapshot served to readers outside the loop.
func (e *Engine) publish() {
	snap := e.pool.Clone()
	e.stateMutex.Lock()
	e.snapshot = snap
	e.sessionCount = e.sessions.Len()
	e.stateMutex.Unlock()
}

func (e *Engine) reject(id SessionID, err error) {
	e.log.Warn().Str("session_id", string(id)).Err(err).Msg("Request rejected")
	e.out.Send(id, Event{Type: MsgError, Data: ErrorMessage{Message: clientMessage(err)}})
}

// Attach sends the current pool to a freshly connected client.
func (e *Engine) Attach(id SessionID) error {
	return e.do(func() {
		e.out.Send(id, Event{Type: MsgPoolUpdated, Data: e.pool.Clone()})
	})
}

// ConnectWallet registers the session for id or reuses the existing one, and
// replies with its balance.
func (e *Engine) ConnectWallet(id SessionID, req ConnectWalletRequest) (WalletConnected, error) {
	var (
		resp WalletConnected
		err  error
	)
	if doErr := e.do(func() {
		if req.Address == "" {
			err = badRequest("Wallet address is required")
			e.reject(id, err)
			return
		}

		s, created := e.sessions.Register(id, req.Address, req.Balance, e.now())
		e.publish()

		resp = WalletConnected{Address: s.Address, Balance: s.Balance}
		if created {
			e.log.Info().Str("session_id", string(id)).Str("address", s.Address).Msg("Wallet connected")
		}
		e.out.Send(id, Event{Type: MsgWalletConnected, Data: resp})
	}); doErr != nil {
		return resp, doErr
	}
	return resp, err
}

// Join admits the session into the current pool with the given stake.
func (e *Engine) Join(id SessionID, stake decimal.Decimal) (JoinedPool, error) {
	var (
		resp JoinedPool
		err  error
	)
	if doErr := e.do(func() {
		var s *Session
		if s, err = e.sessions.Get(id); err != nil {
			e.reject(id, err)
			return
		}

		var player Player
		if player, err = e.pool.Admit(s, stake, e.now()); err != nil {
			e.reject(id, err)
			return
		}
		// A pool with players always counts down; this resumes a
		// countdown suspended when the pool emptied.
		e.countdown = true
		e.publish()

		e.log.Info().
			Str("pool_id", e.pool.ID).
			Str("session_id", string(id)).
			Str("stake", stake.String()).
			Int("players", len(e.pool.Players)).
			Msg("Player joined")

		resp = JoinedPool{Player: player, Balance: s.Balance}
		e.out.Broadcast(Event{Type: MsgPoolUpdated, Data: e.pool.Clone()})
		e.out.Send(id, Event{Type: MsgJoinedPool, Data: resp})
	}); doErr != nil {
		return resp, doErr
	}
	return resp, err
}

// Spin settles a quick spin for the session.
func (e *Engine) Spin(id SessionID, bet, multiplier decimal.Decimal) (SpinResult, error) {
	var (
		resp SpinResult
		err  error
	)
	if doErr := e.do(func() {
		var s *Session
		if s, err = e.sessions.Get(id); err != nil {
			e.reject(id, err)
			return
		}
		if resp, err = EvaluateSpin(e.rng, s.Balance, bet, multiplier); err != nil {
			e.reject(id, err)
			return
		}
		s.Balance = resp.Balance

		e.log.Info().
			Str("session_id", string(id)).
			Str("bet", bet.String()).
			Str("multiplier", multiplier.String()).
			Bool("won", resp.Won).
			Msg("Quick spin")

		e.out.Send(id, Event{Type: MsgSpinResult, Data: resp})
		if e.sinks != nil {
			e.sinks.spin(SpinRecord{
				SessionID:  id,
				Address:    s.Address,
				BetAmount:  bet,
				Multiplier: multiplier,
				Won:        resp.Won,
				Amount:     resp.Amount,
				Balance:    resp.Balance,
				SettledAt:  e.now(),
			})
		}
	}); doErr != nil {
		return resp, doErr
	}
	return resp, err
}

// Disconnect removes the session's player from a waiting pool and releases
// the session. Emptying the pool suspends its countdown without resetting it.
func (e *Engine) Disconnect(id SessionID) error {
	return e.do(func() {
		if player, ok := e.pool.Remove(id); ok {
			if len(e.pool.Players) == 0 {
				e.countdown = false
			}
			e.log.Info().
				Str("pool_id", e.pool.ID).
				Str("session_id", string(id)).
				Str("stake", player.Stake.String()).
				Bool("countdown", e.countdown).
				Msg("Player left")
			e.publish()
			e.out.Broadcast(Event{Type: MsgPoolUpdated, Data: e.pool.Clone()})
		}
		e.sessions.Release(id)
		e.publish()
	})
}

// Balance reports the session's current balance.
func (e *Engine) Balance(id SessionID) (decimal.Decimal, error) {
	var (
		balance decimal.Decimal
		err     error
	)
	if doErr := e.do(func() {
		var s *Session
		if s, err = e.sessions.Get(id); err == nil {
			balance = s.Balance
		}
	}); doErr != nil {
		return balance, doErr
	}
	return balance, err
}

func (e *Engine) CurrentPool() Pool {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return e.snapshot.Clone()
}

func (e *Engine) SessionCount() int {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return e.sessionCount
}

func (e *Engine) Uptime() time.Duration {
	return e.now().Sub(e.startedAt)
}

func (e *Engine) Stats() Stats {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return Stats{
		ConnectedUsers: e.sessionCount,
		CurrentPool:    e.snapshot.Clone(),
		Uptime:         e.Uptime().Seconds(),
	}
}
