package realtime

import "time"

// Tick is one trade update delivered to subscribers.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// serverMessage is the inbound frame format. The feed multiplexes trade
// ticks and control messages over one connection, discriminated by type.
type serverMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

const (
	messageTypeTrade     = "trade"
	messageTypeConnected = "connected"
)

// clientMessage is the outbound subscribe/unsubscribe frame.
type clientMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

func (m *serverMessage) tick() Tick {
	return Tick{
		Symbol:    m.Symbol,
		Price:     m.Price,
		Volume:    m.Volume,
		Timestamp: time.UnixMilli(m.Timestamp),
	}
}
