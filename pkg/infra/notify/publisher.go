package notify

import (
	"context"
	"encoding/json"

	"github.com/ExamTrust/ProctorGate/pkg/cache"
)

//go:generate mockery --name=EventPublisher --dir=. --output=./mocks --filename=event_publisher_mock.go --case=underscore --with-expecter

type EventPublisher interface {
	Publish(ctx context.Context, channel Channel, ev Event) error
}

type redisEventPublisher struct {
	cache *cache.Cache
}

func NewRedisEventPublisher(cache *cache.Cache) EventPublisher {
	return &redisEventPublisher{
		cache: cache,
	}
}

func (p *redisEventPublisher) Publish(ctx context.Context, channel Channel, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	envelope := RedisMessage{
		Type:  ev.Type(),
		Event: b,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.cache.Client().Publish(ctx, string(channel), data).Err()
}
