package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
)

const (
	tradesChannel       = "pub:trades"
	replicationsChannel = "pub:replications"
)

// Outcome is the external view of one follower replication result.
type Outcome struct {
	SourceOrderID string `json:"source_order_id"`
	AccountID     string `json:"account_id"`
	PlacedOrderID string `json:"placed_order_id,omitempty"`
	Symbol        string `json:"symbol"`
	Quantity      int64  `json:"quantity"`
	Attempts      int    `json:"attempts"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string
	Password string
	DB       int
}

// Publisher mirrors trades and outcomes onto Redis pub/sub channels.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects to Redis and pings it.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Infof("[feed] redis publisher connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishTrade pushes one observed trade onto the trades channel.
func (p *Publisher) PublishTrade(ctx context.Context, t model.Trade) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, tradesChannel, raw).Err(); err != nil {
		log.Warnf("[feed] trade publish failed: %v", err)
	}
}

// PublishOutcome pushes one replication outcome onto the replications
// channel.
func (p *Publisher) PublishOutcome(ctx context.Context, o Outcome) {
	raw, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, replicationsChannel, raw).Err(); err != nil {
		log.Warnf("[feed] outcome publish failed: %v", err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error { return p.client.Close() }
