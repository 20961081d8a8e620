package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
)

// Config holds the broker address and credentials.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	VHost    string
}

// URL builds the AMQP connection URL.
func (c Config) URL() string {
	port := c.Port
	if port == 0 {
		port = 5672
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(port),
		Path:   "/" + c.VHost,
	}

	return u.String()
}

// ErrClientClosed is returned by operations on a closed Client.
var ErrClientClosed = errors.New("rabbitmq client is closed")

// Client represents a RabbitMQ client. A channel or connection closed by the
// broker is reopened on the next operation.
type Client struct {
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  chan *amqp.Error
	stopped bool
	mu      sync.Mutex
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}

	return nil
}

// NewClient dials the broker and opens a channel.
func NewClient(cfg Config) (*Client, error) {
	client := &Client{cfg: cfg}
	if err := client.connect(); err != nil {
		return nil, err
	}

	slog.Info("RabbitMQ connected", "host", cfg.Host)

	return client, nil
}

// connect dials a new connection when the current one is gone and opens a
// fresh channel on it. Callers hold mu.
func (r *Client) connect() error {
	if r.conn == nil || r.conn.IsClosed() {
		conn, err := amqp.Dial(r.cfg.URL())
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		r.conn = conn
	}

	channel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open RabbitMQ channel: %w", err)
	}

	r.channel = channel
	r.closed = channel.NotifyClose(make(chan *amqp.Error, 1))

	return nil
}

// ensureChannel returns a usable channel, reopening it after a broker side
// close. Callers hold mu.
func (r *Client) ensureChannel() (*amqp.Channel, error) {
	if r.stopped {
		return nil, ErrClientClosed
	}

	if r.channel != nil {
		select {
		case amqpErr := <-r.closed:
			slog.Warn("RabbitMQ channel closed, reconnecting", "host", r.cfg.Host, "error", amqpErr)
			r.channel = nil
		default:
			return r.channel, nil
		}
	}

	if err := r.connect(); err != nil {
		return nil, err
	}
	slog.Info("RabbitMQ reconnected", "host", r.cfg.Host)

	return r.channel, nil
}

// MustNewClient creates a new RabbitMQ client.
func MustNewClient(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}

	return client
}

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration.
func (r *Client) DeclareQueue(cfg DeclareQueueConfig) (amqp.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, err := r.ensureChannel()
	if err != nil {
		return amqp.Queue{}, err
	}

	return channel.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
}

// DeclareTopicExchange declares a durable topic exchange.
func (r *Client) DeclareTopicExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, err := r.ensureChannel()
	if err != nil {
		return err
	}

	return channel.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Publish sends a persistent message. The channel is shared, so publishes
// are serialized; ctx is checked again once the channel is acquired because
// the AMQP publish itself cannot be cancelled.
func (r *Client) Publish(ctx context.Context, exchange, routingKey, contentType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	channel, err := r.ensureChannel()
	if err != nil {
		return err
	}

	return channel.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
