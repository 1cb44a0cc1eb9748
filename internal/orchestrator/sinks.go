package orchestrator

import (
	"context"

	"github.com/spherical/quizgen/internal/domain"
)

// SinkFunc adapts a function to domain.ProgressSink.
type SinkFunc func(ctx context.Context, event domain.ProgressEvent) error

// Publish implements domain.ProgressSink.
func (f SinkFunc) Publish(ctx context.Context, event domain.ProgressEvent) error {
	return f(ctx, event)
}

// Publisher is a pub/sub channel publisher such as the Redis cache client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// AllProgressChannel carries the progress of every batch.
const AllProgressChannel = "progress:all"

// ProgressChannel is the pub/sub channel carrying a batch's progress.
func ProgressChannel(batchID string) string {
	return "progress:" + batchID
}

// ChannelSink republishes progress events on the batch's pub/sub channel
// and on AllProgressChannel.
type ChannelSink struct {
	pub Publisher
}

// NewChannelSink creates a sink over pub.
func NewChannelSink(pub Publisher) *ChannelSink {
	return &ChannelSink{pub: pub}
}

// Publish implements domain.ProgressSink.
func (s *ChannelSink) Publish(ctx context.Context, event domain.ProgressEvent) error {
	if err := s.pub.Publish(ctx, ProgressChannel(event.BatchID), event); err != nil {
		return err
	}
	return s.pub.Publish(ctx, AllProgressChannel, event)
}
