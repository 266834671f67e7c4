package feed

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const DefaultWSURL = "wss://stream.bybit.com/v5/public/linear"

// BybitFeed implements domain.PriceSource over the Bybit v5 public linear
// websocket. It subscribes to ticker topics and fans out last-price updates
// to registered callbacks as exact decimals.
type BybitFeed struct {
	wsURL string

	mu        sync.Mutex
	wsConn    *websocket.Conn
	symbols   map[string]bool
	callbacks []func(symbol string, price decimal.Decimal)
	closed    bool
}

func NewBybitFeed(wsURL string) *BybitFeed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &BybitFeed{
		wsURL:   wsURL,
		symbols: make(map[string]bool),
	}
}

func (b *BybitFeed) OnPriceUpdate(callback func(symbol string, price decimal.Decimal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

func (b *BybitFeed) Subscribe(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fresh []string
	for _, s := range symbols {
		if !b.symbols[s] {
			b.symbols[s] = true
			fresh = append(fresh, s)
		}
	}

	if b.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
		if err != nil {
			return err
		}
		b.wsConn = c
		go b.readLoop(c)
		// New connection: subscribe to everything we track, not just fresh.
		fresh = fresh[:0]
		for s := range b.symbols {
			fresh = append(fresh, s)
		}
	}
	return b.subscribe(fresh)
}

func (b *BybitFeed) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]any, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	return b.wsConn.WriteJSON(map[string]any{
		"op":   "subscribe",
		"args": args,
	})
}

func (b *BybitFeed) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.wsConn != nil {
		err := b.wsConn.Close()
		b.wsConn = nil
		return err
	}
	return nil
}

type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

func (b *BybitFeed) readLoop(c *websocket.Conn) {
	defer c.Close()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			b.mu.Lock()
			if b.wsConn == c {
				b.wsConn = nil
			}
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				log.Println("WS read error, reconnecting:", err)
				go b.reconnect()
			}
			return
		}

		var event tickerMessage
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}

		price, err := decimal.NewFromString(event.Data.LastPrice)
		if err != nil {
			log.Println("WS bad lastPrice:", event.Data.LastPrice)
			continue
		}
		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}

		b.mu.Lock()
		callbacks := append(([]func(string, decimal.Decimal))(nil), b.callbacks...)
		b.mu.Unlock()
		for _, cb := range callbacks {
			cb(symbol, price)
		}
	}
}

func (b *BybitFeed) reconnect() {
	for {
		time.Sleep(3 * time.Second)
		b.mu.Lock()
		if b.closed || b.wsConn != nil {
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		if err := b.Subscribe(nil); err != nil {
			log.Println("WS reconnect failed:", err)
			continue
		}
		return
	}
}
