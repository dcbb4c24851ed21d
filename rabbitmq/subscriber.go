// Package rabbitmq consumes object-store bucket notifications from an AMQP
// queue and hands message bodies to a callback.
package rabbitmq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"fixspot/metrics"
)

// CallbackFunc processes one message body. Return:
//   - nil on success (message is acked)
//   - Permanent(err) for a non-retriable failure (acked and dropped)
//   - any other error for a transient failure (nacked with requeue)
type CallbackFunc func(body []byte) error

// PermanentError marks a message processing failure as non-retriable.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retriable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func isPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

// Subscriber is a RabbitMQ subscriber instance.
type Subscriber struct {
	amqpURL    string
	exchange   string
	queue      string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	startOnce sync.Once
	done      chan struct{}
}

// NewSubscriber connects to RabbitMQ and binds the queue to the bucket
// notification exchange, so callers fail fast when the broker is down.
func NewSubscriber(amqpURL, exchange, queue, routingKey string) (*Subscriber, error) {
	s := &Subscriber{
		amqpURL:    amqpURL,
		exchange:   exchange,
		queue:      queue,
		routingKey: routingKey,
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	err := s.reconnectLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// reconnectLocked tears down any existing channel/connection and recreates
// them. Caller must hold s.mu.
func (s *Subscriber) reconnectLocked() error {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	conn, err := amqp.Dial(s.amqpURL)
	if err != nil {
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(s.queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, s.routingKey, s.exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		metrics.RabbitMQConnected.Set(0)
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	s.conn = conn
	s.channel = ch
	metrics.RabbitMQConnected.Set(1)
	log.Infof("RabbitMQ subscriber connected: exchange=%s queue=%s routing_key=%s", s.exchange, s.queue, s.routingKey)
	return nil
}

// Start begins consuming in a background goroutine, reconnecting with
// backoff until Stop is called.
func (s *Subscriber) Start(callback CallbackFunc) {
	s.startOnce.Do(func() {
		go s.consumeLoop(callback)
	})
}

func (s *Subscriber) consumeLoop(callback CallbackFunc) {
	backoff := time.Second
	for {
		select {
		case <-s.done:
			return
		default:
		}

		deliveries, err := s.consume()
		if err != nil {
			log.Errorf("RabbitMQ consume failed, retrying in %v: %v", backoff, err)
			metrics.RabbitMQConnected.Set(0)
			select {
			case <-s.done:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			s.mu.Lock()
			if rerr := s.reconnectLocked(); rerr != nil {
				log.Errorf("RabbitMQ reconnect failed: %v", rerr)
			}
			s.mu.Unlock()
			continue
		}
		backoff = time.Second

		for delivery := range deliveries {
			s.handle(delivery, callback)
		}
		// Channel closed by the broker; loop around and reconnect.
	}
}

func (s *Subscriber) consume() (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil, errors.New("channel not open")
	}
	return s.channel.Consume(s.queue, "", false, false, false, false, nil)
}

func (s *Subscriber) handle(delivery amqp.Delivery, callback CallbackFunc) {
	err := callback(delivery.Body)
	switch {
	case err == nil:
		if aerr := delivery.Ack(false); aerr != nil {
			log.Errorf("Failed to ack delivery %d: %v", delivery.DeliveryTag, aerr)
		}
	case isPermanent(err):
		log.Errorf("Dropping message after permanent failure: %v", err)
		if aerr := delivery.Ack(false); aerr != nil {
			log.Errorf("Failed to ack delivery %d: %v", delivery.DeliveryTag, aerr)
		}
	default:
		log.Errorf("Requeueing message after transient failure: %v", err)
		if nerr := delivery.Nack(false, true); nerr != nil {
			log.Errorf("Failed to nack delivery %d: %v", delivery.DeliveryTag, nerr)
		}
	}
}

// Stop stops consuming and closes the connection.
func (s *Subscriber) Stop() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, err)
		}
		s.channel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		s.conn = nil
	}
	metrics.RabbitMQConnected.Set(0)
	return errors.Join(errs...)
}
