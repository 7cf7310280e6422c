/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package canon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/veilmesh/nodecore/internal/connector"
)

// Connector sync never talks to the normalizer directly; it hands raw
// records to an internal ingestion topic, and the normalizer consumes from
// that topic on its own schedule. This keeps sync decoupled from indexing,
// matching the task-pool concurrency model (§5): sync failures never block
// on normalizer backpressure and vice versa.

// IngestConfig configures the internal ingestion topic.
type IngestConfig struct {
	Brokers []string
	Topic   string
}

var (
	errProducerClosed = errors.New("canon: ingestion producer is closed")
	errNilRecord      = errors.New("canon: raw record must not be nil")
)

// saramaProducer abstracts sarama.AsyncProducer for testing, mirroring the
// shape used by the audit/streaming publisher.
type saramaProducer interface {
	Input() chan<- *sarama.ProducerMessage
	Errors() <-chan *sarama.ProducerError
	AsyncClose()
	Close() error
}

// Producer publishes raw connector records onto the internal ingestion
// topic, keyed by source id so records from the same source land on the
// same partition and are normalized in fetch order.
type Producer struct {
	producer saramaProducer
	topic    string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewProducer creates a Producer backed by a real Kafka cluster.
func NewProducer(cfg IngestConfig, logger *slog.Logger) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sp, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("canon: create kafka producer: %w", err)
	}
	return newProducerWithBackend(sp, cfg.Topic, logger), nil
}

func newProducerWithBackend(sp saramaProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{producer: sp, topic: topic, logger: logger}
	p.wg.Add(1)
	go p.drainErrors()
	return p
}

// Publish sends a single raw record onto the ingestion topic. Non-blocking.
func (p *Producer) Publish(rec *connector.RawRecord) error {
	if rec == nil {
		return errNilRecord
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errProducerClosed
	}
	p.mu.RUnlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("canon: marshal raw record: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(rec.SourceID),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close shuts down the producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for prodErr := range p.producer.Errors() {
		p.logger.Error("ingestion publish failed", "topic", p.topic, "error", prodErr.Err.Error())
	}
}

// recordSource abstracts a sarama.PartitionConsumer for testing.
type recordSource interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// Consumer drains the ingestion topic, normalizes each raw record, and
// hands the resulting canonical Event to Sink. One Consumer per partition
// consumer instance; a node runs one per topic-partition it owns.
type Consumer struct {
	source   recordSource
	registry *Registry
	sink     func(*Event)
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer wires a Consumer over a live sarama.PartitionConsumer.
func NewConsumer(source recordSource, registry *Registry, sink func(*Event), logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Consumer{
		source:   source,
		registry: registry,
		sink:     sink,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins draining the ingestion topic in a background goroutine.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *Consumer) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case msg, ok := <-c.source.Messages():
			if !ok {
				return
			}
			c.handle(msg)
		case cErr, ok := <-c.source.Errors():
			if !ok {
				continue
			}
			c.logger.Error("ingestion consume failed", "error", cErr.Err.Error())
		}
	}
}

func (c *Consumer) handle(msg *sarama.ConsumerMessage) {
	var rec connector.RawRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		c.logger.Error("ingestion decode failed", "error", err.Error())
		return
	}
	event, err := c.registry.Normalize(rec)
	if err != nil {
		c.logger.Error("ingestion normalize failed", "error", err.Error(), "source_type", rec.SourceType)
		return
	}
	if c.sink != nil {
		c.sink(event)
	}
}

// Stop stops draining and closes the underlying partition consumer.
func (c *Consumer) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.source.Close()
}
