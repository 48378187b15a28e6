package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// ErrStopped reports an emergency stop requested on the bot's talk page.
// Watch mode ends on it.
var ErrStopped = errors.New("emergency stop requested")

func pageFingerprint(text string) string {
	return strconv.FormatUint(murmur3.Sum64([]byte(text)), 16)
}

// checkStop compares the talk page with the fingerprint stored by the
// previous run. The first observation only records a baseline, and changes
// made by the bot itself move the baseline without stopping.
func (o *Orchestrator) checkStop(ctx context.Context, start time.Time, logger *slog.Logger) error {
	if o.checkpoints == nil || o.opts.StopPage == "" {
		return nil
	}
	page, err := o.wiki.Fetch(ctx, o.opts.StopPage)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return nil
	case err != nil:
		return o.classify(fmt.Errorf("fetch stop page: %w", err))
	}

	key := "stop:" + o.opts.StopPage
	current := pageFingerprint(page.Text)
	previous, ok, err := o.checkpoints.Checkpoint(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: load stop checkpoint: %w", ErrFatal, err)
	}
	if ok && previous == current {
		return nil
	}
	if err := o.checkpoints.SetCheckpoint(ctx, key, current); err != nil {
		return fmt.Errorf("%w: store stop checkpoint: %w", ErrFatal, err)
	}
	if !ok {
		logger.Info("stop page baseline recorded", "page", o.opts.StopPage)
		return nil
	}
	if page.LastEditor == "" || page.LastEditor == o.opts.BotName {
		logger.Debug("stop page changed by the bot", "page", o.opts.StopPage)
		return nil
	}

	user := page.LastEditor
	logger.Warn("emergency stop requested", "page", o.opts.StopPage, "user", user)
	o.acknowledgeStop(ctx, start, user, logger)
	o.alert(ctx, domain.LevelCritical, "Arrêt d'urgence demandé",
		fmt.Sprintf("%s a écrit sur %s, le bot s'arrête.", user, o.opts.StopPage),
		map[string]string{"run": o.runID, "user": user, "page": o.opts.StopPage})
	return fmt.Errorf("%w by %s", ErrStopped, user)
}

// acknowledgeStop answers on the talk page and logs the stop on the report
// page. Nothing is written in dry-run.
func (o *Orchestrator) acknowledgeStop(ctx context.Context, start time.Time, user string, logger *slog.Logger) {
	if o.opts.DryRun {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.SaveTimeout)
	defer cancel()

	reply := fmt.Sprintf("\n\n{{ping|%s}} L'utilisateur '''%s''' a demandé l'arrêt du bot. Le bot s'est arrêté correctement. <sup>Message automatisé</sup> ~~~~", user, user)
	if err := o.wiki.Append(saveCtx, o.opts.StopPage, reply, "Réponse automatique suite à l'arrêt d'urgence"); err != nil {
		logger.Warn("stop reply not saved", "page", o.opts.StopPage, "error", err)
	}

	block := "\n\n" + resumeBlock(o.opts.BotName, "stop", start, 0, 0, "Arrêt demandé par [[Utilisateur:"+user+"|"+user+"]]")
	if err := o.wiki.Append(saveCtx, o.reportTitle(start), block, "Arrêt d'urgence demandé par "+user); err != nil {
		logger.Warn("stop log not saved", "page", o.reportTitle(start), "error", err)
	}
}
