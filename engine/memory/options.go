package memory

import "github.com/spaghettifunk/anima-memory/engine/core"

// ExhaustionPolicy decides what SizeClassAllocator does when a size-class
// pool has no free block left.
type ExhaustionPolicy uint8

const (
	// ExhaustionFatal reports a *core.FatalError. Size-class pools cannot grow,
	// so exhaustion means the budgets are wrong.
	ExhaustionFatal ExhaustionPolicy = iota
	// ExhaustionFallback serves the request from the backing heap and records
	// the fallback in telemetry.
	ExhaustionFallback
)

func (p ExhaustionPolicy) String() string {
	if p == ExhaustionFallback {
		return "fallback"
	}
	return "fatal"
}

type options struct {
	name       string
	sink       core.AllocationSink
	debugFill  bool
	policy     ExhaustionPolicy
	headerSize int
}

type Option func(*options)

// WithName sets the diagnostic name of a pool.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithSink routes allocation telemetry to sink.
func WithSink(sink core.AllocationSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithDebugFill fills blocks with AllocFill on Alloc and FreeFill on Free.
func WithDebugFill(enabled bool) Option {
	return func(o *options) {
		o.debugFill = enabled
	}
}

// WithExhaustionPolicy applies to SizeClassAllocator only.
func WithExhaustionPolicy(p ExhaustionPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// withHeaderSize reserves n bytes after each block for allocator bookkeeping.
func withHeaderSize(n int) Option {
	return func(o *options) {
		o.headerSize = n
	}
}

func buildOptions(opts []Option) options {
	o := options{sink: core.NopSink{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
