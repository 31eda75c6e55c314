package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/pkg/logger"
)

const weatherKeyPrefix = "weather:"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetWeather(ctx context.Context, addressHash string, wc complaint.WeatherContext, ttl time.Duration) error {
	data, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("failed to marshal weather: %w", err)
	}

	if err := c.client.Set(ctx, weatherKeyPrefix+addressHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set weather cache: %w", err)
	}

	logger.Debug("Weather cached", zap.String("address_hash", addressHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetWeather(ctx context.Context, addressHash string) (complaint.WeatherContext, bool, error) {
	data, err := c.client.Get(ctx, weatherKeyPrefix+addressHash).Bytes()
	if err == redis.Nil {
		return complaint.WeatherContext{}, false, nil
	}
	if err != nil {
		return complaint.WeatherContext{}, false, fmt.Errorf("failed to get weather cache: %w", err)
	}

	var wc complaint.WeatherContext
	if err := json.Unmarshal(data, &wc); err != nil {
		return complaint.WeatherContext{}, false, fmt.Errorf("failed to unmarshal weather: %w", err)
	}

	logger.Debug("Weather cache hit", zap.String("address_hash", addressHash))
	return wc, true, nil
}
