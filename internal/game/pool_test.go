package game

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func newSession(id string, balance int64) *Session {
	return &Session{ID: SessionID(id), Address: "addr-" + id, Balance: dec(balance)}
}

func TestNewPool(t *testing.T) {
	p := NewPool(DefaultPoolConfig(), 300)

	if p.ID == "" {
		t.Error("pool id is empty")
	}
	if p.Status != PoolStatusWaiting {
		t.Errorf("status = %s, want waiting", p.Status)
	}
	if p.TimeRemaining != 300 {
		t.Errorf("timeRemaining = %d, want 300", p.TimeRemaining)
	}
	if !p.TotalStaked.IsZero() || len(p.Players) != 0 {
		t.Error("new pool should be empty")
	}
	if p.Winner != nil || p.RugEvent != nil {
		t.Error("new pool should have no winner or rug event")
	}
	if other := NewPool(DefaultPoolConfig(), 300); other.ID == p.ID {
		t.Error("pool ids should be unique")
	}
}

func TestPool_Admit(t *testing.T) {
	now := time.Now()

	t.Run("example scenario totals", func(t *testing.T) {
		p := NewPool(DefaultPoolConfig(), 300)
		a, b := newSession("a", 1000), newSession("b", 1000)

		pa, err := p.Admit(a, dec(10), now)
		if err != nil {
			t.Fatalf("Admit(a) error = %v", err)
		}
		if !p.TotalStaked.Equal(dec(10)) || !a.Balance.Equal(dec(990)) {
			t.Fatalf("after a: total=%s balance=%s", p.TotalStaked, a.Balance)
		}

		if _, err := p.Admit(b, dec(20), now); err != nil {
			t.Fatalf("Admit(b) error = %v", err)
		}
		if !p.TotalStaked.Equal(dec(30)) {
			t.Errorf("total = %s, want 30", p.TotalStaked)
		}
		if len(p.Players) != 2 || p.Players[0].SessionID != "a" || p.Players[1].SessionID != "b" {
			t.Errorf("players not in join order: %+v", p.Players)
		}
		if !pa.IsAlive || pa.Address != "addr-a" || pa.Avatar == "" || pa.Badges == nil {
			t.Errorf("player fields not populated: %+v", pa)
		}
	})

	t.Run("rejections leave state untouched", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.MaxPlayers = 2

		tests := []struct {
			name    string
			setup   func(p *Pool) *Session
			stake   int64
			wantErr error
		}{
			{
				name:    "stake below min",
				setup:   func(p *Pool) *Session { return newSession("x", 1000) },
				stake:   0,
				wantErr: ErrInvalidStake,
			},
			{
				name:    "stake above max",
				setup:   func(p *Pool) *Session { return newSession("x", 1000) },
				stake:   101,
				wantErr: ErrInvalidStake,
			},
			{
				name:    "insufficient balance",
				setup:   func(p *Pool) *Session { return newSession("x", 5) },
				stake:   10,
				wantErr: ErrInsufficientBalance,
			},
			{
				name: "pool full",
				setup: func(p *Pool) *Session {
					p.Admit(newSession("a", 100), dec(1), now)
					p.Admit(newSession("b", 100), dec(1), now)
					return newSession("x", 1000)
				},
				stake:   10,
				wantErr: ErrPoolFull,
			},
			{
				name: "pool ended",
				setup: func(p *Pool) *Session {
					p.Status = PoolStatusEnded
					return newSession("x", 1000)
				},
				stake:   10,
				wantErr: ErrPoolNotAccepting,
			},
			{
				name: "already in pool",
				setup: func(p *Pool) *Session {
					s := newSession("x", 1000)
					p.Admit(s, dec(5), now)
					return s
				},
				stake:   10,
				wantErr: ErrAlreadyInPool,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := NewPool(cfg, 300)
				s := tt.setup(p)
				totalBefore, balanceBefore, playersBefore := p.TotalStaked, s.Balance, len(p.Players)

				_, err := p.Admit(s, dec(tt.stake), now)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Admit() error = %v, want %v", err, tt.wantErr)
				}
				if !p.TotalStaked.Equal(totalBefore) || !s.Balance.Equal(balanceBefore) || len(p.Players) != playersBefore {
					t.Errorf("state mutated on rejection: total=%s balance=%s players=%d",
						p.TotalStaked, s.Balance, len(p.Players))
				}
			})
		}
	})

	t.Run("first failing rule wins", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.MaxPlayers = 1
		p := NewPool(cfg, 300)
		p.Admit(newSession("a", 100), dec(1), now)
		p.Status = PoolStatusEnded

		// Out of range, over balance, full and ended at once.
		_, err := p.Admit(newSession("x", 50), dec(500), now)
		if !errors.Is(err, ErrInvalidStake) {
			t.Errorf("error = %v, want ErrInvalidStake", err)
		}
		if err.Error() != "Stake must be between 1-100 SOL" {
			t.Errorf("message = %q", err.Error())
		}

		_, err = p.Admit(newSession("y", 50), dec(60), now)
		if !errors.Is(err, ErrInsufficientBalance) {
			t.Errorf("error = %v, want ErrInsufficientBalance", err)
		}
	})
}

func TestPool_Remove(t *testing.T) {
	now := time.Now()
	p := NewPool(DefaultPoolConfig(), 300)
	p.Admit(newSession("a", 1000), dec(10), now)
	p.Admit(newSession("b", 1000), dec(25), now)
	p.Admit(newSession("c", 1000), dec(7), now)

	removed, ok := p.Remove("b")
	if !ok || !removed.Stake.Equal(dec(25)) {
		t.Fatalf("Remove(b) = %+v, %v", removed, ok)
	}
	if !p.TotalStaked.Equal(dec(17)) || !p.TotalStaked.Equal(p.StakeSum()) {
		t.Errorf("total = %s, sum = %s, want 17", p.TotalStaked, p.StakeSum())
	}
	if p.Players[0].SessionID != "a" || p.Players[1].SessionID != "c" {
		t.Errorf("order not preserved: %+v", p.Players)
	}

	if _, ok := p.Remove("b"); ok {
		t.Error("removing an absent session should report false")
	}

	p.Status = PoolStatusEnded
	if _, ok := p.Remove("a"); ok {
		t.Error("an ended pool must not change")
	}
	if len(p.Players) != 2 {
		t.Errorf("players = %d, want 2", len(p.Players))
	}
}

func TestPool_Resolve(t *testing.T) {
	now := time.Now()

	t.Run("empty pool has no winner", func(t *testing.T) {
		p := NewPool(DefaultPoolConfig(), 0)
		if _, ok := p.Resolve(NewSeededRand(1), now); ok {
			t.Fatal("Resolve on empty pool should report false")
		}
		if p.Status != PoolStatusWaiting || p.Winner != nil || p.RugEvent != nil {
			t.Error("empty pool should be left untouched")
		}
	})

	t.Run("winner and rug event set together", func(t *testing.T) {
		p := NewPool(DefaultPoolConfig(), 0)
		p.Admit(newSession("a", 1000), dec(10), now)
		p.Admit(newSession("b", 1000), dec(20), now)

		ev, ok := p.Resolve(NewSeededRand(1), now)
		if !ok {
			t.Fatal("Resolve() = false")
		}
		if p.Status != PoolStatusEnded {
			t.Errorf("status = %s, want ended", p.Status)
		}
		if p.Winner == nil || p.RugEvent == nil {
			t.Fatal("winner and rug event must both be set")
		}
		if p.Winner.ID != ev.Winner.ID || p.RugEvent.Winner.ID != ev.Winner.ID {
			t.Error("winner mismatch between pool and event")
		}
		if !ev.TotalPrize.Equal(dec(30)) {
			t.Errorf("totalPrize = %s, want 30", ev.TotalPrize)
		}
		if _, again := p.Resolve(NewSeededRand(2), now); again {
			t.Error("an ended pool must not resolve twice")
		}
	})

	t.Run("selection is uniform regardless of stake", func(t *testing.T) {
		const (
			k      = 4
			rounds = 40000
		)
		rng := NewSeededRand(7)
		stakes := []int64{1, 5, 50, 100}
		wins := make(map[SessionID]int)

		for i := 0; i < rounds; i++ {
			p := NewPool(DefaultPoolConfig(), 0)
			for j := 0; j < k; j++ {
				p.Admit(newSession(fmt.Sprint(j), 1000), dec(stakes[j]), now)
			}
			ev, _ := p.Resolve(rng, now)
			wins[ev.Winner.SessionID]++
		}

		for j := 0; j < k; j++ {
			freq := float64(wins[SessionID(fmt.Sprint(j))]) / rounds
			if math.Abs(freq-1.0/k) > 0.015 {
				t.Errorf("player %d (stake %d) won %.4f, want ~%.4f", j, stakes[j], freq, 1.0/k)
			}
		}
	})
}

func TestPool_Clone(t *testing.T) {
	now := time.Now()
	p := NewPool(DefaultPoolConfig(), 10)
	p.Admit(newSession("a", 1000), dec(10), now)
	p.Resolve(NewSeededRand(1), now)

	c := p.Clone()
	c.Players[0].Address = "changed"
	c.Players[0].Badges = append(c.Players[0].Badges, "x")
	c.Winner.Address = "changed"
	c.RugEvent.Winner.Address = "changed"

	if p.Players[0].Address != "addr-a" || p.Winner.Address != "addr-a" || p.RugEvent.Winner.Address != "addr-a" {
		t.Error("clone shares state with the original")
	}
	if len(p.Players[0].Badges) != 0 {
		t.Error("clone shares badges with the original")
	}
}
