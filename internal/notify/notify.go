package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// Options configures cooldown windows and delivery timeouts.
type Options struct {
	WikiBase        string
	PageCooldown    time.Duration
	MessageCooldown time.Duration
	ChannelTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.WikiBase == "" {
		o.WikiBase = "https://fr.vikidia.org"
	}
	if o.PageCooldown <= 0 {
		o.PageCooldown = 5 * time.Minute
	}
	if o.MessageCooldown <= 0 {
		o.MessageCooldown = time.Minute
	}
	if o.ChannelTimeout <= 0 {
		o.ChannelTimeout = 10 * time.Second
	}
	return o
}

// Deps groups the collaborators of the notifier.
type Deps struct {
	Channels  []ports.AlertChannel
	Fallback  ports.AlertChannel
	Cooldowns ports.CooldownStore
	Logger    *slog.Logger
	Now       func() time.Time
}

// Filter is implemented by channels that only deliver some alerts.
type Filter interface {
	Accepts(alert domain.Alert) bool
}

// Service fans alerts out to every channel, then to the fallback log.
type Service struct {
	channels  []ports.AlertChannel
	fallback  ports.AlertChannel
	cooldowns ports.CooldownStore
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.Notifier = (*Service)(nil)

// New wires a notification service.
func New(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		channels:  deps.Channels,
		fallback:  deps.Fallback,
		cooldowns: deps.Cooldowns,
		opts:      opts.withDefaults(),
		logger:    logger,
		now:       now,
	}
}

// Notify alerts about a decision. Decisions without an action are not
// eligible; repeated alerts for a page are dropped during the page cooldown.
func (s *Service) Notify(ctx context.Context, decision domain.Decision) error {
	if !Eligible(decision) {
		return nil
	}
	if !s.claim(ctx, "page:"+decision.Page, s.opts.PageCooldown, "page") {
		s.logger.Info("alert suppressed, page in cooldown", "page", decision.Page)
		return nil
	}
	return s.deliver(ctx, DecisionAlert(decision, s.opts.WikiBase, s.now()))
}

// Alert raises an operational alert. Only the message cooldown applies.
func (s *Service) Alert(ctx context.Context, level domain.AlertLevel, title, message string, fields map[string]string) error {
	alert := domain.Alert{
		Category: domain.CategoryOperational,
		Title:    title,
		Body:     withFields(message, fields),
		Priority: domain.PriorityForLevel(level),
		Level:    level,
		Tags:     []string{levelTag(level)},
		Fields:   fields,
		Time:     s.now(),
	}
	if alert.Title == "" {
		alert.Title = fmt.Sprintf("BotCélian - %s", level)
	}
	return s.deliver(ctx, alert)
}

func (s *Service) deliver(ctx context.Context, alert domain.Alert) error {
	if !s.claim(ctx, "msg:"+Fingerprint(alert), s.opts.MessageCooldown, "message") {
		s.logger.Debug("alert suppressed, duplicate message", "title", alert.Title)
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, ch := range s.channels {
		if f, ok := ch.(Filter); ok && !f.Accepts(alert) {
			continue
		}
		g.Go(func() error {
			if err := s.send(ctx, ch, alert); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.fallback != nil {
		if err := s.send(ctx, s.fallback, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) send(ctx context.Context, ch ports.AlertChannel, alert domain.Alert) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.opts.ChannelTimeout)
	defer cancel()

	if err := ch.Send(sendCtx, alert); err != nil {
		metrics.NotificationsSent.WithLabelValues(ch.Name(), "error").Inc()
		s.logger.Warn("alert delivery failed", "channel", ch.Name(), "title", alert.Title, "error", err)
		return fmt.Errorf("send %s: %w", ch.Name(), err)
	}
	metrics.NotificationsSent.WithLabelValues(ch.Name(), "ok").Inc()
	return nil
}

// claim reports whether the key may fire now. A failing store lets the
// alert through.
func (s *Service) claim(ctx context.Context, key string, ttl time.Duration, kind string) bool {
	if s.cooldowns == nil {
		return true
	}
	ok, err := s.cooldowns.Claim(ctx, key, ttl)
	if err != nil {
		s.logger.Warn("cooldown store unavailable", "key", key, "error", err)
		return true
	}
	if !ok {
		metrics.NotificationsSuppressed.WithLabelValues(kind).Inc()
	}
	return ok
}

// Fingerprint hashes the visible content of an alert with murmur3.
func Fingerprint(alert domain.Alert) string {
	val := murmur3.Sum64([]byte(alert.Title + "\x00" + alert.Body))
	return fmt.Sprintf("%016x", val)
}

func withFields(message string, fields map[string]string) string {
	if len(fields) == 0 {
		return message
	}
	body := message + "\n"
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		body += "\n" + k + ": " + fields[k]
	}
	return body
}

func levelTag(level domain.AlertLevel) string {
	switch level {
	case domain.LevelWarning:
		return "warning"
	case domain.LevelError:
		return "x"
	case domain.LevelCritical:
		return "rotating_light"
	default:
		return "robot"
	}
}
