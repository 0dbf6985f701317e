package lmstfy

import (
	"context"

	"github.com/bitleak/lmstfy/client"
)

// sdk adapts *client.LmstfyClient to api. Some SDK calls return *APIError
// rather than error, so every result is checked before it crosses the
// interface to avoid a non-nil error holding a nil pointer.
type sdk struct {
	cli *client.LmstfyClient
}

func (s *sdk) Publish(queue string, data []byte, ttlSecond uint32, tries uint16, delaySecond uint32) (string, error) {
	jobID, err := s.cli.Publish(queue, data, ttlSecond, tries, delaySecond)
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (s *sdk) BatchConsume(ctx context.Context, queues []string, count, ttrSecond, timeoutSecond uint32) ([]*client.Job, error) {
	jobs, err := s.cli.BatchConsumeWithContext(ctx, queues, count, ttrSecond, timeoutSecond)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *sdk) Ack(queue, jobID string) error {
	if err := s.cli.Ack(queue, jobID); err != nil {
		return err
	}
	return nil
}

func (s *sdk) QueueSize(queue string) (int, error) {
	size, err := s.cli.QueueSize(queue)
	if err != nil {
		return 0, err
	}
	return size, nil
}
