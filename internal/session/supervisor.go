package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
	"github.com/mvankamp/dictum/internal/hub"
)

// recoveryBackoff is the pause between a portal failure and the next
// session attempt.
const recoveryBackoff = 2 * time.Second

// Supervise runs sessions in a restart loop until shutdown. Restart
// outcomes re-enter immediately against the hub's current config; session
// errors back off through RecoveringSession first.
func Supervise(ctx context.Context, deps Deps, h *hub.Hub, notifier Notifier, logger *slog.Logger) error {
	for {
		cfg := h.Config()

		runCtx, cancel := context.WithCancel(ctx)
		type result struct {
			outcome Outcome
			err     error
		}
		done := make(chan result, 1)
		go func(cfg config.Config) {
			outcome, err := Run(runCtx, cfg, deps, h, notifier, logger)
			done <- result{outcome: outcome, err: err}
		}(cfg)

		select {
		case <-h.ShutdownRequested():
			logger.Info("shutdown requested")
			cancel()
			<-done
			return nil

		case <-ctx.Done():
			cancel()
			<-done
			return nil

		case r := <-done:
			cancel()
			if r.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("session error", "error", r.err.Error())
				h.SetPortalConnected(false)
				notifier.NotifyPortalConnected()
				publishState(h, notifier, fsm.StateRecoveringSession)

				logger.Info("attempting session recovery", "backoff", recoveryBackoff.String())
				select {
				case <-time.After(recoveryBackoff):
				case <-h.ShutdownRequested():
					return nil
				case <-ctx.Done():
					return nil
				}
				publishState(h, notifier, fsm.StateIdle)
				continue
			}
			if r.outcome == OutcomeRestart {
				logger.Info("restarting session against current config")
				continue
			}
			return nil
		}
	}
}

func publishState(h *hub.Hub, notifier Notifier, s fsm.State) {
	h.SetState(s)
	notifier.NotifyState()
}
