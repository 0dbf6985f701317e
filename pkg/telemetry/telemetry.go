// Package telemetry holds the optional tracing and metrics capabilities.
// Components take a Tracer and a Meter and fall back to the no-op versions;
// leaving them out changes what is observed, never what is processed.
package telemetry

import "context"

// Failure reasons reported by the consumer.
const (
	ReasonParse       = "parse"
	ReasonUnknownUser = "unknown_user"
	ReasonPersist     = "persist"
	ReasonAck         = "ack"
)

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Tracer moves trace context in and out of string carriers such as queue
// message attributes.
type Tracer interface {
	Inject(ctx context.Context, carrier map[string]string)
	Extract(ctx context.Context, carrier map[string]string) context.Context
	// Start opens a span; the returned func ends it.
	Start(ctx context.Context, name string) (context.Context, func())
}

// Meter records pipeline counters.
type Meter interface {
	MessagesReceived(n int)
	MessageProcessed()
	MessageFailed(reason string)
	ReceiveError()
	BreakerOpen(open bool)
	OrderSubmitted(outcome string)
}

type noopTracer struct{}

// NoopTracer returns a Tracer that carries nothing.
func NoopTracer() Tracer { return noopTracer{} }

func (noopTracer) Inject(context.Context, map[string]string) {}

func (noopTracer) Extract(ctx context.Context, _ map[string]string) context.Context { return ctx }

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

type noopMeter struct{}

// NoopMeter returns a Meter that records nothing.
func NoopMeter() Meter { return noopMeter{} }

func (noopMeter) MessagesReceived(int)  {}
func (noopMeter) MessageProcessed()     {}
func (noopMeter) MessageFailed(string)  {}
func (noopMeter) ReceiveError()         {}
func (noopMeter) BreakerOpen(bool)      {}
func (noopMeter) OrderSubmitted(string) {}
