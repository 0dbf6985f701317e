package lmstfy

import (
	"context"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"github.com/tkersh/echobase-sub003/pkg/queue"
)

// Options configure the queue client.
type Options struct {
	Host      string
	Port      int
	Namespace string
	Token     string
	Queue     string
	TTL       time.Duration // 0 keeps the job until acked
	Tries     uint16        // deliveries before lmstfy moves the job to its dead letter
	Delay     time.Duration
	TTR       time.Duration // visibility window of a consumed job
}

// api is the subset of the lmstfy client used here.
type api interface {
	Publish(queue string, data []byte, ttlSecond uint32, tries uint16, delaySecond uint32) (string, error)
	BatchConsume(ctx context.Context, queues []string, count, ttrSecond, timeoutSecond uint32) ([]*client.Job, error)
	Ack(queue, jobID string) error
	QueueSize(queue string) (int, error)
}

// Client implements queue.Client on lmstfy. Jobs carry queue.Encode envelopes
// since lmstfy has no attribute map; the job id doubles as the delete handle.
type Client struct {
	api  api
	opts Options
}

// NewClient creates the lmstfy queue client.
func NewClient(opts Options) (*Client, error) {
	if opts.Queue == "" {
		return nil, fmt.Errorf("lmstfy queue name is required")
	}
	if opts.TTR < time.Second {
		return nil, fmt.Errorf("lmstfy ttr must be at least one second")
	}
	if opts.Tries == 0 {
		opts.Tries = 1
	}
	cli := client.NewLmstfyClient(opts.Host, opts.Port, opts.Namespace, opts.Token)
	return &Client{api: &sdk{cli: cli}, opts: opts}, nil
}

// Enqueue publishes an enveloped job.
func (c *Client) Enqueue(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := queue.Encode(body, attrs)
	if err != nil {
		return "", err
	}
	jobID, err := c.api.Publish(c.opts.Queue, data, seconds(c.opts.TTL), c.opts.Tries, seconds(c.opts.Delay))
	if err != nil {
		return "", fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return jobID, nil
}

// Receive long-polls with BatchConsume; the wait is rounded up to whole
// seconds because lmstfy timeouts are second-granular. Cancelling ctx aborts
// the HTTP long poll.
func (c *Client) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("receive: max must be positive, got %d", maxMessages)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs, err := c.api.BatchConsume(ctx, []string{c.opts.Queue}, uint32(maxMessages), seconds(c.opts.TTR), ceilSeconds(wait))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("lmstfy consume failed: %w", err)
	}

	msgs := make([]*queue.Message, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		body, attrs, err := queue.Decode(job.Data)
		if err != nil {
			// Keep the raw payload; the consumer reports it as a parse failure.
			body, attrs = job.Data, map[string]string{}
		}
		msgs = append(msgs, &queue.Message{
			ID:           job.ID,
			Handle:       job.ID,
			Body:         body,
			Attributes:   attrs,
			ReceiveCount: c.receiveCount(job),
		})
	}
	return msgs, nil
}

// receiveCount derives the delivery count from the tries left on the job.
// Jobs published with a different tries setting report 0.
func (c *Client) receiveCount(job *client.Job) int {
	n := int(c.opts.Tries) - int(job.RemainTries)
	if n <= 0 {
		return 0
	}
	return n
}

// Delete acks the job. lmstfy treats acking an unknown job as success.
func (c *Client) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.api.Ack(c.opts.Queue, handle); err != nil {
		return fmt.Errorf("lmstfy ack failed: %w", err)
	}
	return nil
}

// Depth reports the ready size of the queue.
func (c *Client) Depth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size, err := c.api.QueueSize(c.opts.Queue)
	if err != nil {
		return 0, fmt.Errorf("lmstfy queue size failed: %w", err)
	}
	return size, nil
}

func seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Second)
}

func ceilSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((d + time.Second - 1) / time.Second)
}

var _ queue.Client = (*Client)(nil)
