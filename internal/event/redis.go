package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/pricegrid/taskcore/internal/task"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "taskcore:events"

// RedisPublisher forwards lifecycle events as JSON messages on a Redis
// pub/sub channel so external UI mirrors can follow task state.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	ctx     context.Context
}

func NewRedisPublisher(redisAddr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if channel == "" {
		channel = defaultChannel
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		ctx:     ctx,
	}, nil
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) publish(t Type, info task.Info, err error) {
	data, marshalErr := json.Marshal(NewEvent(t, info, err))
	if marshalErr != nil {
		log.Printf("failed to marshal %s event for task %s: %v", t, info.ID, marshalErr)
		return
	}

	if pubErr := p.client.Publish(p.ctx, p.channel, data).Err(); pubErr != nil {
		log.Printf("failed to publish %s event for task %s: %v", t, info.ID, pubErr)
	}
}

func (p *RedisPublisher) OnTaskCreated(info task.Info)   { p.publish(TypeCreated, info, nil) }
func (p *RedisPublisher) OnTaskStarted(info task.Info)   { p.publish(TypeStarted, info, nil) }
func (p *RedisPublisher) OnTaskPaused(info task.Info)    { p.publish(TypePaused, info, nil) }
func (p *RedisPublisher) OnTaskResumed(info task.Info)   { p.publish(TypeResumed, info, nil) }
func (p *RedisPublisher) OnTaskStopped(info task.Info)   { p.publish(TypeStopped, info, nil) }
func (p *RedisPublisher) OnTaskCompleted(info task.Info) { p.publish(TypeCompleted, info, nil) }
func (p *RedisPublisher) OnTaskProgress(info task.Info)  { p.publish(TypeProgress, info, nil) }

func (p *RedisPublisher) OnTaskFailed(info task.Info, err error) {
	p.publish(TypeFailed, info, err)
}
