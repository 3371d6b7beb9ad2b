package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/lynx-chain/compwatch/pkg/logger"
)

// LogNotification is one live update from the node: the logs of a single
// transaction that mentioned the subscribed address.
type LogNotification struct {
	Signature string
	Slot      uint64
	LogLines  []string
}

// Subscriber maintains a websocket log subscription for one address. It is
// a lower-latency complement to polling; consumers must still tolerate
// missed notifications across reconnects.
type Subscriber struct {
	wsURL      string
	address    Address
	commitment CommitmentLevel
	notifChan  chan LogNotification
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	// mu guards conn: the listen goroutine swaps it on reconnect while
	// Stop closes it from the caller's goroutine.
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSubscriber creates a log subscriber for the given address.
func NewSubscriber(wsURL string, address Address, commitment CommitmentLevel, bufferSize int, log *logger.Logger) *Subscriber {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		wsURL:      wsURL,
		address:    address,
		commitment: commitment,
		notifChan:  make(chan LogNotification, bufferSize),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Notifications returns the stream of per-transaction log updates. The
// channel closes when the subscriber stops.
func (s *Subscriber) Notifications() <-chan LogNotification {
	return s.notifChan
}

// Start connects, subscribes, and begins delivering notifications.
func (s *Subscriber) Start() error {
	if err := s.connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := s.subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go s.listen()

	s.log.Info("Log subscriber started", "address", s.address.String(), "url", s.wsURL)
	return nil
}

// Stop tears down the subscription and closes the notification channel.
func (s *Subscriber) Stop() {
	s.cancel()
	if conn := s.currentConn(); conn != nil {
		_ = conn.Close()
	}
}

// currentConn returns the active connection, or nil before the first dial.
func (s *Subscriber) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// setConn installs a new connection, closing the one it replaces.
func (s *Subscriber) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (s *Subscriber) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	s.setConn(conn)
	return nil
}

func (s *Subscriber) subscribe() error {
	subscribeMsg := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{s.address.String()}},
			map[string]any{"commitment": string(s.commitment)},
		},
	}
	if err := s.currentConn().WriteJSON(subscribeMsg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}
	return nil
}

// logsNotification mirrors the node's logsNotification frame.
type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// listen reads frames until stopped, reconnecting on read failures.
func (s *Subscriber) listen() {
	defer close(s.notifChan)

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Log subscriber stopped")
			return
		default:
		}

		_, message, err := s.currentConn().ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Warn("Websocket read failed, reconnecting", "error", err)
			if err := s.reconnectWithRetry(); err != nil {
				s.log.Error("Failed to reconnect, stopping subscriber", "error", err)
				return
			}
			continue
		}

		var notif logsNotification
		if err := json.Unmarshal(message, &notif); err != nil {
			s.log.Debug("Skipping unparseable frame", "error", err)
			continue
		}
		if notif.Method != "logsNotification" {
			// Subscription confirmations and pings land here.
			continue
		}

		update := LogNotification{
			Signature: notif.Params.Result.Value.Signature,
			Slot:      notif.Params.Result.Context.Slot,
			LogLines:  notif.Params.Result.Value.Logs,
		}

		select {
		case s.notifChan <- update:
		case <-s.ctx.Done():
			return
		}
	}
}

// reconnectWithRetry re-establishes the connection and subscription with
// exponential backoff, giving up after a few minutes.
func (s *Subscriber) reconnectWithRetry() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 5 * time.Minute

	return backoff.Retry(func() error {
		if s.ctx.Err() != nil {
			return backoff.Permanent(s.ctx.Err())
		}
		// connect installs the new conn and closes the dead one.
		if err := s.connect(); err != nil {
			return err
		}
		return s.subscribe()
	}, bo)
}
