package game

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients read every amount as a JSON number.
	decimal.MarshalJSONWithoutQuotes = true
}

type PoolStatus string

const (
	PoolStatusWaiting PoolStatus = "waiting"
	// PoolStatusActive is part of the client model only; the engine never sets it.
	PoolStatusActive PoolStatus = "active"
	PoolStatusEnded  PoolStatus = "ended"
)

// SessionID identifies one live connection.
type SessionID string

type Player struct {
	ID        string          `json:"id"`
	SessionID SessionID       `json:"-"`
	Address   string          `json:"address"`
	Stake     decimal.Decimal `json:"stake"`
	JoinedAt  time.Time       `json:"joinedAt"`
	Avatar    string          `json:"avatar"`
	Badges    []string        `json:"badges"`
	IsAlive   bool            `json:"isAlive"`
}

type RugEvent struct {
	Timestamp  time.Time       `json:"timestamp"`
	Winner     Player          `json:"winner"`
	TotalPrize decimal.Decimal `json:"totalPrize"`
}

// Pool is the shared stake of the current round. Winner and RugEvent are
// either both nil or both set.
type Pool struct {
	ID            string          `json:"id"`
	TotalStaked   decimal.Decimal `json:"totalStaked"`
	Players       []Player        `json:"players"`
	TimeRemaining int             `json:"timeRemaining"`
	MaxPlayers    int             `json:"maxPlayers"`
	MinStake      decimal.Decimal `json:"minStake"`
	MaxStake      decimal.Decimal `json:"maxStake"`
	Status        PoolStatus      `json:"status"`
	Winner        *Player         `json:"winner"`
	RugEvent      *RugEvent       `json:"rugEvent"`
}

type MessageType string

const (
	// client -> server
	MsgConnectWallet MessageType = "connect_wallet"
	MsgJoinPool      MessageType = "join_pool"
	MsgQuickSpin     MessageType = "quick_spin"
	MsgPing          MessageType = "ping"

	// server -> requesting client
	MsgWalletConnected MessageType = "wallet_connected"
	MsgJoinedPool      MessageType = "joined_pool"
	MsgSpinResult      MessageType = "spin_result"
	MsgError           MessageType = "error"
	MsgPong            MessageType = "pong"

	// server -> all clients
	MsgPoolUpdated MessageType = "pool_updated"
	MsgNewPool     MessageType = "new_pool"
	MsgRugEvent    MessageType = "rug_event"
)

// Message is an inbound frame; Data is decoded by the handler for Type.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame.
type Event struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type ConnectWalletRequest struct {
	Address string           `json:"address"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

type JoinPoolRequest struct {
	StakeAmount decimal.Decimal `json:"stakeAmount"`
}

type QuickSpinRequest struct {
	BetAmount  decimal.Decimal `json:"betAmount"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type WalletConnected struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

type JoinedPool struct {
	Player  Player          `json:"player"`
	Balance decimal.Decimal `json:"balance"`
}

// SpinResult reports a settled quick spin. Amount is +bet*multiplier on a
// win and -bet on a loss.
type SpinResult struct {
	Won     bool            `json:"won"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// SpinRecord is what sinks receive for every settled quick spin.
type SpinRecord struct {
	SessionID  SessionID       `json:"session_id"`
	Address    string          `json:"address"`
	BetAmount  decimal.Decimal `json:"bet_amount"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Won        bool            `json:"won"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	SettledAt  time.Time       `json:"settled_at"`
}

// Stats is the out-of-band inspection view served by the HTTP layer.
type Stats struct {
	ConnectedUsers int     `json:"connectedUsers"`
	CurrentPool    Pool    `json:"currentPool"`
	Uptime         float64 `json:"uptime"`
}
