// Package nats carries limit changes and suspicious events over NATS
// JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/assetlimits/pkg/security/credentials"
)

// Connect dials url, authenticating with the credentials from provider when
// one is given.
func Connect(ctx context.Context, url string, provider credentials.Provider, opts ...nats.Option) (*nats.Conn, error) {
	if provider != nil {
		creds, err := provider.GetCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get NATS credentials: %w", err)
		}
		switch creds.Type {
		case credentials.CredentialTypeToken:
			opts = append(opts, nats.Token(creds.Token))
		case credentials.CredentialTypeUserPassword:
			opts = append(opts, nats.UserInfo(creds.User, creds.Password))
		default:
			return nil, fmt.Errorf("%w: unsupported type %q", credentials.ErrInvalidCredentials, creds.Type)
		}
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// StreamConfig describes a JetStream stream owned by this service.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	Storage  nats.StorageType
}

// LimitChangesStream is the default stream for inbound limit changes.
func LimitChangesStream(name, subject string) StreamConfig {
	return StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		MaxAge:   7 * 24 * time.Hour,
		MaxBytes: 256 * 1024 * 1024,
		Storage:  nats.FileStorage,
	}
}

// EventsStream is the default stream for published suspicious events.
func EventsStream(name, subjectPrefix string) StreamConfig {
	return StreamConfig{
		Name:     name,
		Subjects: []string{subjectPrefix + ".>"},
		MaxAge:   30 * 24 * time.Hour,
		MaxBytes: 1024 * 1024 * 1024,
		Storage:  nats.FileStorage,
	}
}

// EnsureStream creates the stream, or updates its retention when it exists
// with different limits.
func EnsureStream(js nats.JetStreamContext, cfg StreamConfig) error {
	streamConfig := &nats.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Storage:   cfg.Storage,
		Replicas:  1,
	}
	if streamConfig.MaxBytes == 0 {
		streamConfig.MaxBytes = -1
	}

	info, err := js.StreamInfo(cfg.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
	}

	if info.Config.MaxAge != streamConfig.MaxAge || info.Config.MaxBytes != streamConfig.MaxBytes {
		if _, err := js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}
