package judgment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

const promotionThreshold = 70

// Options controls pacing and retries around the classifier.
type Options struct {
	MinInterval    time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	AttemptTimeout time.Duration
	SampleRunes    int
}

func (o Options) withDefaults() Options {
	if o.MinInterval <= 0 {
		o.MinInterval = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.SampleRunes <= 0 {
		o.SampleRunes = 4000
	}
	return o
}

// Adapter turns classifier replies into validated judgments. It never
// fails: after the last attempt it returns the fallback judgment.
type Adapter struct {
	client  ports.Classifier
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
}

// New builds an adapter around a classifier transport.
func New(client ports.Classifier, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Adapter{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		opts:    opts,
		logger:  logger,
	}
}

// Name implements detector.Detector.
func (a *Adapter) Name() string { return "judgment" }

// Evaluate implements detector.Detector. The verdict always carries the
// judgment, even when nothing is recommended.
func (a *Adapter) Evaluate(ctx context.Context, page *domain.PageSnapshot) (*domain.Verdict, error) {
	if page == nil {
		return nil, nil
	}
	j := a.Judge(ctx, page.Title, page.Text)
	return ToVerdict(j), nil
}

// Judge asks the classifier about a page, retrying with exponential backoff.
func (a *Adapter) Judge(ctx context.Context, title, text string) domain.Judgment {
	if a.client == nil {
		return domain.FallbackJudgment("classifieur non configuré")
	}
	prompt := BuildPrompt(title, sample(text, a.opts.SampleRunes))

	var lastErr error
	for attempt := 0; attempt < a.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, a.opts.BaseBackoff<<(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		if err := a.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		j, err := a.attempt(ctx, prompt)
		if err == nil {
			metrics.ModelAttempts.WithLabelValues("ok").Inc()
			return j
		}
		lastErr = err
		status := "transport"
		if errors.Is(err, ErrMalformed) {
			status = "malformed"
		}
		metrics.ModelAttempts.WithLabelValues(status).Inc()
		a.logger.Warn("model attempt failed", "page", title, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	metrics.ModelAttempts.WithLabelValues("fallback").Inc()
	a.logger.Warn("model unavailable, using fallback", "page", title, "error", lastErr)
	return domain.FallbackJudgment(fmt.Sprintf("analyse indisponible : %v", lastErr))
}

func (a *Adapter) attempt(ctx context.Context, prompt string) (domain.Judgment, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.opts.AttemptTimeout)
	defer cancel()

	reply, err := a.client.Complete(attemptCtx, prompt)
	if err != nil {
		return domain.Judgment{}, fmt.Errorf("complete: %w", err)
	}
	return Parse(reply)
}

// ToVerdict maps a judgment onto the detector verdict scale.
func ToVerdict(j domain.Judgment) *domain.Verdict {
	judgment := j
	v := &domain.Verdict{
		Detector:      "judgment",
		Kind:          domain.KindJudgment,
		Recommend:     domain.RecommendNone,
		Confidence:    j.Confidence,
		Justification: j.Justification,
		Judgment:      &judgment,
	}
	switch {
	case j.Fallback:
	case j.Vandalism:
		v.Kind = domain.KindVandalism
		v.Recommend = domain.RecommendDeletion
		v.Severity = 5
	case !j.TargetLanguage:
		v.Kind = domain.KindLanguage
		v.Recommend = domain.RecommendDeletion
		v.Severity = 3
	case j.Promotion && j.Confidence >= promotionThreshold:
		v.Kind = domain.KindPromo
		v.Recommend = domain.RecommendDeletion
		v.Severity = 4
	}
	return v
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sample(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "\n[…]"
}
