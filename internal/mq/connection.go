package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Задержки между попытками переподключения.
const (
	minRedialDelay = time.Second
	maxRedialDelay = 30 * time.Second
)

// ErrNoChannel — канал ещё не открыт или соединение переподключается.
var ErrNoChannel = errors.New("no amqp channel available")

// session — живое соединение с открытым каналом.
type session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (s *session) alive() bool {
	return s != nil && !s.conn.IsClosed() && !s.ch.IsClosed()
}

// Connection держит одну AMQP сессию и восстанавливает её после разрыва.
// Consumer узнаёт о новой сессии через ReconnectNotify.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	current *session
	closed  bool

	stop        chan struct{}
	reconnected chan struct{}
}

// NewConnection подключается к брокеру. Первая попытка синхронная:
// недоступный брокер при старте — ошибка, а не фоновые повторы.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sess, err := dial(url)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		url:         url,
		logger:      logger.With("component", "amqp"),
		current:     sess,
		stop:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}
	c.logger.Info("connected to RabbitMQ")

	go c.supervise(sess)
	return c, nil
}

func dial(url string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &session{conn: conn, ch: ch}, nil
}

// supervise ждёт разрыва текущей сессии и поднимает новую.
func (c *Connection) supervise(sess *session) {
	for {
		lost := sess.conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.stop:
			return
		case amqpErr := <-lost:
			if amqpErr != nil {
				c.logger.Warn("connection lost", "error", amqpErr)
			}
		}

		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()

		next, ok := c.redial()
		if !ok {
			return
		}
		sess = next
	}
}

// redial повторяет подключение с растущей задержкой до успеха или Close.
func (c *Connection) redial() (*session, bool) {
	delay := minRedialDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-c.stop:
			return nil, false
		case <-timer.C:
		}

		sess, err := dial(c.url)
		if err != nil {
			delay = nextRedialDelay(delay)
			c.logger.Warn("reconnect failed", "error", err, "retry_in", delay)
			timer.Reset(delay)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = sess.conn.Close()
			return nil, false
		}
		c.current = sess
		c.mu.Unlock()

		c.logger.Info("reconnected to RabbitMQ")
		select {
		case c.reconnected <- struct{}{}:
		default:
		}
		return sess, true
	}
}

func nextRedialDelay(d time.Duration) time.Duration {
	return min(d*2, maxRedialDelay)
}

// Connected — есть ли сейчас рабочая сессия.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.alive()
}

// Channel возвращает канал текущей сессии или nil во время переподключения.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	return c.current.ch
}

// ReconnectNotify сигналит после каждого восстановления сессии.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnected
}

// WithChannel вызывает fn с каналом текущей сессии.
// Без рабочей сессии возвращает ErrNoChannel, не дожидаясь переподключения.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close останавливает переподключение и закрывает сессию. Повторный вызов — no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	sess := c.current
	c.current = nil
	c.mu.Unlock()

	if sess == nil {
		return nil
	}

	err := errors.Join(
		wrapClose("close channel", sess.ch.Close()),
		wrapClose("close connection", sess.conn.Close()),
	)
	if err == nil {
		c.logger.Info("connection closed")
	}
	return err
}

func wrapClose(op string, err error) error {
	if err == nil || errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
