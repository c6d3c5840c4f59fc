package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries, usually to Kafka.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls how error entries are grouped and shipped.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval (e.g., 30s)
	CountThreshold int           // max unique entries before flush (e.g., 100)
	Topic          string
	Publisher      Publisher
	IncludeWarn    bool // aggregate warn entries as well as errors
	// VolatileFields are left out of the grouping key so the same failure
	// across requests or runs lands in one entry.
	VolatileFields []string
}

// DefaultVolatileFields are per-request values that never group.
var DefaultVolatileFields = []string{"trace_id", "request_id", "run_id", "elapsed_ms", "latency_ms", "offset"}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector groups repeated entries and publishes them in batches from a
// single sender goroutine. Batches are dropped when the sender falls behind.
type LogCollector struct {
	config   *CollectionConfig
	volatile map[string]struct{}
	logMap   map[uint64]*AggregatedLogEntry
	mutex    sync.Mutex
	batches  chan []AggregatedLogEntry
	dropped  int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

const pendingBatches = 4

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.VolatileFields == nil {
		config.VolatileFields = DefaultVolatileFields
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &LogCollector{
		config:   config,
		volatile: make(map[string]struct{}, len(config.VolatileFields)),
		logMap:   make(map[uint64]*AggregatedLogEntry),
		batches:  make(chan []AggregatedLogEntry, pendingBatches),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, f := range config.VolatileFields {
		c.volatile[f] = struct{}{}
	}

	c.wg.Add(2)
	go c.periodicFlush()
	go c.send(c.batches)
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := c.groupKey(level, message, fields, caller)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.logMap[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.logMap) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

// groupKey hashes level, caller, message and the stable fields in key order.
func (c *LogCollector) groupKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, caller, message)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, skip := c.volatile[k]; !skip {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%v", k, fields[k])
	}
	return h.Sum64()
}

func (c *LogCollector) periodicFlush() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.flushLocked()
			c.mutex.Unlock()
		case <-c.ctx.Done():
			c.mutex.Lock()
			c.flushLocked()
			close(c.batches)
			c.batches = nil
			c.mutex.Unlock()
			return
		}
	}
}

// flushLocked hands the current entries to the sender. Caller holds mutex.
func (c *LogCollector) flushLocked() {
	if len(c.logMap) == 0 || c.batches == nil {
		return
	}
	logs := make([]AggregatedLogEntry, 0, len(c.logMap))
	for _, entry := range c.logMap {
		logs = append(logs, *entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].FirstSeen.Before(logs[j].FirstSeen) })
	c.logMap = make(map[uint64]*AggregatedLogEntry)

	select {
	case c.batches <- logs:
	default:
		c.dropped += len(logs)
	}
}

func (c *LogCollector) send(batches <-chan []AggregatedLogEntry) {
	defer c.wg.Done()
	for logs := range batches {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, logs); err != nil {
			// the logger cannot log its own shipping failures
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(logs), c.config.Topic, err)
		}
		cancel()
	}
}

// Dropped returns how many entries were discarded because the sender was busy.
func (c *LogCollector) Dropped() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.dropped
}

// Close flushes what is left and waits for the sender to finish.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
