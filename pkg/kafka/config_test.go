package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestConsumerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConsumerOption
		wantErr bool
	}{
		{name: "defaults", opts: []ConsumerOption{WithConsumerBrokers([]string{"localhost:9092"})}},
		{name: "no brokers", wantErr: true},
		{
			name:    "bad offset reset",
			opts:    []ConsumerOption{WithConsumerBrokers([]string{"b:9092"}), WithConsumerAutoOffsetReset("newest")},
			wantErr: true,
		},
		{
			name:    "inverted fetch",
			opts:    []ConsumerOption{WithConsumerBrokers([]string{"b:9092"}), WithConsumerFetch(100, 10)},
			wantErr: true,
		},
		{
			name:    "inverted backoff",
			opts:    []ConsumerOption{WithConsumerBrokers([]string{"b:9092"}), WithConsumerRetry(3, time.Second, time.Millisecond)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConsumerConfig()
			for _, opt := range tt.opts {
				opt(cfg)
			}
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Fatalf("validate() err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumerStartOffset(t *testing.T) {
	cfg := defaultConsumerConfig()
	if cfg.startOffset() != kafka.FirstOffset {
		t.Fatalf("default should read from the beginning")
	}
	WithConsumerAutoOffsetReset("LATEST")(cfg)
	if cfg.startOffset() != kafka.LastOffset {
		t.Fatalf("latest should map to LastOffset")
	}
}

func TestProducerConfigValidate(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBrokers([]string{"b:9092"})(cfg)
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	WithCompression("brotli")(cfg)
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected unknown compression error")
	}
	if parseCompression("ZSTD") != kafka.Zstd || parseCompression("") != kafka.Gzip {
		t.Fatalf("unexpected codec mapping")
	}
}
