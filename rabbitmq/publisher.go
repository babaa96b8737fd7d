package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"threatsense/metrics"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	appID = "threatsense"
	// Minimum pause between redial attempts after the broker dropped the connection
	redialInterval = 5 * time.Second
)

var errClosed = errors.New("publisher is closed")

// Publisher sends verdict events to a durable direct exchange.
// A dropped connection is redialed lazily by the next Publish.
type Publisher struct {
	mu         sync.Mutex
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	closed     chan *amqp.Error
	exchange   string
	routingKey string
	stopped    bool
	lastDial   time.Time
	now        func() time.Time
}

// NewPublisher connects to RabbitMQ and declares the exchange
func NewPublisher(amqpURL, exchangeName, routingKey string) (*Publisher, error) {
	p := &Publisher{
		url:        amqpURL,
		exchange:   exchangeName,
		routingKey: routingKey,
		now:        time.Now,
	}
	if err := p.dial(); err != nil {
		return nil, err
	}
	return p, nil
}

// dial must be called with mu held or before the publisher is shared
func (p *Publisher) dial() error {
	p.lastDial = p.clock()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchange, // name
		"direct",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = channel
	p.closed = conn.NotifyClose(make(chan *amqp.Error, 1))

	metrics.RabbitMQConnected.Set(1)
	metrics.RabbitMQLastConnectSeconds.Set(metrics.NowUnixSeconds())
	log.Infof("Publishing verdict events to exchange %s with routing key %s", p.exchange, p.routingKey)
	return nil
}

func (p *Publisher) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// Publish sends message as persistent JSON with the default routing key
func (p *Publisher) Publish(ctx context.Context, message interface{}) error {
	err := p.publish(ctx, message)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, message interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context done before publishing message: %w", err)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureConnected(); err != nil {
		return err
	}

	// amqp.Channel is not safe for concurrent publishing
	err = p.channel.Publish(
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			AppId:        appID,
			Type:         p.routingKey,
			Timestamp:    p.clock(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ensureConnected redials at most once per redialInterval. Requires mu.
func (p *Publisher) ensureConnected() error {
	if p.stopped {
		return errClosed
	}
	if p.isConnected() {
		return nil
	}
	metrics.RabbitMQConnected.Set(0)
	p.release()

	if p.url == "" || p.clock().Sub(p.lastDial) < redialInterval {
		return errClosed
	}
	if err := p.dial(); err != nil {
		log.Warnf("RabbitMQ redial failed: %v", err)
		return fmt.Errorf("%w: %v", errClosed, err)
	}
	return nil
}

// Close closes the publisher connection and channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	err := p.release()
	metrics.RabbitMQConnected.Set(0)
	return err
}

func (p *Publisher) release() error {
	var err error
	if p.channel != nil {
		if channelErr := p.channel.Close(); channelErr != nil && !errors.Is(channelErr, amqp.ErrClosed) {
			log.Warnf("Failed to close channel: %v", channelErr)
			err = channelErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil && !errors.Is(connErr, amqp.ErrClosed) {
			log.Warnf("Failed to close connection: %v", connErr)
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

func (p *Publisher) isConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}
