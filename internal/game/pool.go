package game

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const avatarURL = "https://api.dicebear.com/7.x/pixel-art/svg?seed=%s"

// PoolConfig holds the bounds fixed on every pool at creation.
type PoolConfig struct {
	MaxPlayers int
	MinStake   decimal.Decimal
	MaxStake   decimal.Decimal
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPlayers: 10,
		MinStake:   decimal.NewFromInt(1),
		MaxStake:   decimal.NewFromInt(100),
	}
}

// NewPool returns an empty waiting pool with a fresh id.
func NewPool(cfg PoolConfig, timeRemaining int) *Pool {
	return &Pool{
		ID:            uuid.NewString(),
		TotalStaked:   decimal.Zero,
		Players:       make([]Player, 0, cfg.MaxPlayers),
		TimeRemaining: timeRemaining,
		MaxPlayers:    cfg.MaxPlayers,
		MinStake:      cfg.MinStake,
		MaxStake:      cfg.MaxStake,
		Status:        PoolStatusWaiting,
	}
}

// CanJoin runs the admission checks in a fixed order so the first failing
// rule is the one reported.
func (p *Pool) CanJoin(s *Session, stake decimal.Decimal) error {
	if stake.LessThan(p.MinStake) || stake.GreaterThan(p.MaxStake) {
		return invalidStake(p.MinStake, p.MaxStake)
	}
	if stake.GreaterThan(s.Balance) {
		return ErrInsufficientBalance
	}
	if len(p.Players) >= p.MaxPlayers {
		return ErrPoolFull
	}
	if p.Status != PoolStatusWaiting {
		return ErrPoolNotAccepting
	}
	if _, ok := p.PlayerFor(s.ID); ok {
		return ErrAlreadyInPool
	}
	return nil
}

// Admit validates, debits the session and appends a player. Nothing is
// mutated when validation fails.
func (p *Pool) Admit(s *Session, stake decimal.Decimal, now time.Time) (Player, error) {
	if err := p.CanJoin(s, stake); err != nil {
		return Player{}, err
	}
	if err := s.Debit(stake); err != nil {
		return Player{}, err
	}

	player := Player{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Address:   s.Address,
		Stake:     stake,
		JoinedAt:  now,
		Avatar:    fmt.Sprintf(avatarURL, url.QueryEscape(s.Address)),
		Badges:    []string{},
		IsAlive:   true,
	}
	p.Players = append(p.Players, player)
	p.TotalStaked = p.TotalStaked.Add(stake)
	return player, nil
}

func (p *Pool) PlayerFor(id SessionID) (Player, bool) {
	return lo.Find(p.Players, func(pl Player) bool {
		return pl.SessionID == id
	})
}

// Remove drops the player owned by id while the pool is still waiting.
// An ended pool is frozen and is never changed.
func (p *Pool) Remove(id SessionID) (Player, bool) {
	if p.Status != PoolStatusWaiting {
		return Player{}, false
	}
	_, idx, ok := lo.FindIndexOf(p.Players, func(pl Player) bool {
		return pl.SessionID == id
	})
	if !ok {
		return Player{}, false
	}
	player := p.Players[idx]
	p.Players = append(p.Players[:idx], p.Players[idx+1:]...)
	p.TotalStaked = p.TotalStaked.Sub(player.Stake)
	return player, true
}

// Resolve picks the winner uniformly among current players, independent of
// stake, and freezes the pool. It reports false for an empty pool.
func (p *Pool) Resolve(r *rand.Rand, now time.Time) (RugEvent, bool) {
	if len(p.Players) == 0 || p.Status != PoolStatusWaiting {
		return RugEvent{}, false
	}

	winner := p.Players[r.IntN(len(p.Players))]
	event := RugEvent{
		Timestamp:  now,
		Winner:     winner,
		TotalPrize: p.TotalStaked,
	}

	p.Status = PoolStatusEnded
	p.Winner = &winner
	p.RugEvent = &event
	return event, true
}

// StakeSum recomputes the stake total from the player list.
func (p *Pool) StakeSum() decimal.Decimal {
	return lo.Reduce(p.Players, func(sum decimal.Decimal, pl Player, _ int) decimal.Decimal {
		return sum.Add(pl.Stake)
	}, decimal.Zero)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Pool) Clone() Pool {
	c := *p
	c.Players = make([]Player, len(p.Players))
	for i, pl := range p.Players {
		c.Players[i] = clonePlayer(pl)
	}
	if p.Winner != nil {
		w := clonePlayer(*p.Winner)
		c.Winner = &w
	}
	if p.RugEvent != nil {
		ev := *p.RugEvent
		ev.Winner = clonePlayer(ev.Winner)
		c.RugEvent = &ev
	}
	return c
}

func clonePlayer(pl Player) Player {
	pl.Badges = append([]string{}, pl.Badges...)
	return pl
}
