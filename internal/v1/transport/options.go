package transport

import (
	"time"

	"github.com/scorecast/scorecast/internal/v1/config"
)

// Drop policies applied when a session's outbound queue is full.
const (
	DropOldest = "oldest"
	DropNewest = "newest"
	// DropRandom is accepted but currently behaves like DropOldest.
	DropRandom = "random"
)

// Options tunes the realtime endpoint. Zero values fall back to defaults, so
// Options{} is a working configuration.
type Options struct {
	// SendQueueMax bounds each session's outbound queue.
	SendQueueMax int

	// CoalesceWindow is how long same-kind updates accumulate before the
	// latest one is enqueued.
	CoalesceWindow time.Duration

	// CoalesceKinds lists the message kinds subject to coalescing.
	CoalesceKinds []string

	// DropPolicy picks which payload is discarded when the queue is full.
	DropPolicy string

	// AutoFragmentSize sizes the connection write buffer.
	AutoFragmentSize int

	// MaxMessageBytes caps inbound frame size.
	MaxMessageBytes int64

	// YieldThresholdBytes makes the writer yield the scheduler after writing
	// a payload at least this large.
	YieldThresholdBytes int

	// SlowClientDisconnectAfterDrops closes a session with code 4002 once its
	// cumulative drop count exceeds this value. Zero disables the check.
	SlowClientDisconnectAfterDrops int

	// BatchFlushInterval is the period of the per-room batch flusher.
	BatchFlushInterval time.Duration

	// PingInterval enables keepalive pings when positive. PongWait is the
	// read deadline extension granted per pong.
	PingInterval time.Duration
	PongWait     time.Duration

	// RequestIDHeader names the header carrying the correlation id.
	RequestIDHeader string

	// AllowedOrigins whitelists browser origins for the upgrade. Empty allows
	// only non-browser clients (requests without an Origin header).
	AllowedOrigins []string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

// OptionsFromConfig maps validated environment configuration onto Options.
func OptionsFromConfig(cfg *config.Config, allowedOrigins []string) Options {
	return Options{
		SendQueueMax:                   cfg.WSSendQueueMax,
		CoalesceWindow:                 time.Duration(cfg.WSCoalesceWindowMS) * time.Millisecond,
		CoalesceKinds:                  cfg.WSCoalesceTypes,
		DropPolicy:                     cfg.WSDropPolicy,
		AutoFragmentSize:               cfg.WSAutoFragmentSize,
		MaxMessageBytes:                cfg.WSMaxMessageBytes,
		YieldThresholdBytes:            cfg.WSYieldThresholdBytes,
		SlowClientDisconnectAfterDrops: cfg.WSSlowClientDisconnectAfterDrops,
		BatchFlushInterval:             time.Duration(cfg.WSBatchFlushMS) * time.Millisecond,
		PingInterval:                   time.Duration(cfg.WSPingIntervalS) * time.Second,
		PongWait:                       time.Duration(cfg.WSPongWaitS) * time.Second,
		RequestIDHeader:                cfg.RequestIDHeader,
		AllowedOrigins:                 allowedOrigins,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.SendQueueMax <= 0 {
		o.SendQueueMax = 100
	}
	if o.CoalesceWindow <= 0 {
		o.CoalesceWindow = 50 * time.Millisecond
	}
	if o.CoalesceKinds == nil {
		o.CoalesceKinds = []string{KindPageUpdated, KindSongUpdated}
	}
	if o.DropPolicy == "" {
		o.DropPolicy = DropOldest
	}
	if o.AutoFragmentSize <= 0 {
		o.AutoFragmentSize = 65536
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.YieldThresholdBytes <= 0 {
		o.YieldThresholdBytes = 262144
	}
	if o.BatchFlushInterval <= 0 {
		o.BatchFlushInterval = 200 * time.Millisecond
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.RequestIDHeader == "" {
		o.RequestIDHeader = "X-Request-ID"
	}
	return o
}
