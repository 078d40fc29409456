package broker

import (
	"context"

	"flattener/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, rec models.Record) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, rec models.Record) error
