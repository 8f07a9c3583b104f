package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds connection settings for a Valkey (or Redis) server.
type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
}

// ValkeyKV is the production KV, shared by every instance of the service.
type ValkeyKV struct {
	client valkey.Client
}

// NewValkeyKV connects to the configured server.
func NewValkeyKV(cfg ValkeyConfig) (*ValkeyKV, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opt := valkey.ClientOption{
		InitAddress:  []string{cfg.Address},
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	}
	if cfg.TLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Address, err)
	}
	return &ValkeyKV{client: client}, nil
}

// NewValkeyKVFromClient wraps an existing client.
func NewValkeyKVFromClient(client valkey.Client) *ValkeyKV {
	return &ValkeyKV{client: client}
}

func (v *ValkeyKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("valkey GET %s: %w", key, err)
	}
	return value, nil
}

func (v *ValkeyKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		seconds := int64(ttl / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		cmd = v.client.B().Set().Key(key).Value(valkey.BinaryString(value)).ExSeconds(seconds).Build()
	} else {
		cmd = v.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	}
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey SET %s: %w", key, err)
	}
	return nil
}

func (v *ValkeyKV) Delete(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey DEL %s: %w", key, err)
	}
	return nil
}

func (v *ValkeyKV) GetDel(ctx context.Context, key string) ([]byte, error) {
	value, err := v.client.Do(ctx, v.client.B().Getdel().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("valkey GETDEL %s: %w", key, err)
	}
	return value, nil
}

// Close releases the underlying connections.
func (v *ValkeyKV) Close() {
	v.client.Close()
}
