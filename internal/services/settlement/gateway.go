package settlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAuthorizationTimeout = errors.New("settlement: authorization timed out")
	ErrDeclined             = errors.New("settlement: declined by provider")
)

type GatewayConfig struct {
	SubscribeKey string
	PublishKey   string
	Channel      string
	HMACKey      string
	Timeout      time.Duration
	UserID       string
}

// Notification is what the settlement provider publishes back after a
// charge request. Sig is an HMAC-SHA256 over "<order_id>:<status>".
type Notification struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // approved, declined
	Sig     string `json:"sig"`
}

// Gateway authorizes orders against an external settlement provider over
// a PubNub channel: it publishes the charge request, then waits (bounded)
// for the provider's signed notification for that order.
type Gateway struct {
	config   *GatewayConfig
	pn       *pubnub.PubNub
	listener *pubnub.Listener

	mu      sync.Mutex
	pending map[string]chan *Notification
}

func NewGateway(cfg *GatewayConfig) (*Gateway, error) {
	if cfg.SubscribeKey == "" || cfg.Channel == "" {
		return nil, errors.New("settlement: gateway requires subscribe key and channel")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.PublishKey = cfg.PublishKey

	g := &Gateway{
		config:   cfg,
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		pending:  make(map[string]chan *Notification),
	}

	g.pn.AddListener(g.listener)
	go g.processMessages()
	g.pn.Subscribe().
		Channels([]string{cfg.Channel}).
		Execute()

	return g, nil
}

func (g *Gateway) Authorize(ctx context.Context, req *AuthorizeRequest) error {
	wait := make(chan *Notification, 1)
	g.mu.Lock()
	g.pending[req.OrderID] = wait
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, req.OrderID)
		g.mu.Unlock()
	}()

	_, pnStatus, err := g.pn.Publish().
		Channel(g.config.Channel).
		Message(map[string]any{
			"type":     "charge_request",
			"order_id": req.OrderID,
			"user_id":  req.UserID,
			"event_id": req.EventID,
			"amount":   req.Amount.String(),
		}).
		Execute()
	if err != nil {
		return fmt.Errorf("settlement: publish charge request: %w", err)
	}
	if pnStatus.Error != nil {
		return fmt.Errorf("settlement: publish charge request failed: %w", pnStatus.Error)
	}

	timer := time.NewTimer(g.config.Timeout)
	defer timer.Stop()

	select {
	case n := <-wait:
		if n.Status != "approved" {
			return ErrDeclined
		}
		return nil
	case <-timer.C:
		return ErrAuthorizationTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) processMessages() {
	for message := range g.listener.Message {
		n := g.decode(message.Message)
		if n == nil {
			continue
		}
		g.deliver(n)
	}
}

// HandleNotification ingests a notification the provider delivered over
// the HTTP callback instead of the subscription channel. It reports
// whether the notification was verified and routed.
func (g *Gateway) HandleNotification(n *Notification) bool {
	if n == nil || n.OrderID == "" || n.Sig == "" {
		return false
	}
	if !g.verify(n) {
		slog.Warn("settlement callback with bad signature dropped", "order", n.OrderID)
		return false
	}
	g.deliver(n)
	return true
}

func (g *Gateway) deliver(n *Notification) {
	g.mu.Lock()
	wait, ok := g.pending[n.OrderID]
	g.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wait <- n:
	default:
	}
}

func (g *Gateway) decode(raw any) *Notification {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil || n.OrderID == "" {
		return nil
	}
	// Charge requests echo on the same channel; only provider replies
	// carry a signature.
	if n.Sig == "" {
		return nil
	}
	if !g.verify(&n) {
		slog.Warn("settlement notification with bad signature dropped", "order", n.OrderID)
		return nil
	}
	return &n
}

func (g *Gateway) verify(n *Notification) bool {
	expected := Hmac256([]byte(n.OrderID+":"+n.Status), []byte(g.config.HMACKey))
	return hmac.Equal([]byte(expected), []byte(n.Sig))
}

// Hmac256 signs body with key and returns the hex digest.
func Hmac256(body, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSecret checks a caller-presented webhook secret against
// its stored bcrypt hash. Used when the provider calls back over HTTP
// instead of the subscription channel.
func VerifyWebhookSecret(storedHash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)) == nil
}

// HashWebhookSecret produces the bcrypt hash to store for a provider's
// webhook secret.
func HashWebhookSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
