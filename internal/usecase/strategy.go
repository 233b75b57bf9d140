package usecase

import (
	"context"
	"time"

	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
)

var strategyLog = logger.For("strategy")

// Strategy is the repository pair chosen once at startup. Primary is remote
// when the probe reached it; Fallback is then the local repository.
type Strategy struct {
	Primary  repository.EntityRepository
	Fallback repository.EntityRepository
	Local    LocalEntityRepository
	// Merger is nil when the remote store is not in use.
	Merger repository.RequestMerger
}

// SelectStrategy probes remote once. A nil remote, a failed probe or a probe
// slower than timeout selects local-only operation.
func SelectStrategy(ctx context.Context, remote RemoteEntityRepository, local LocalEntityRepository, timeout time.Duration) *Strategy {
	localOnly := &Strategy{Primary: local, Local: local}
	if remote == nil {
		strategyLog.Info("No remote store configured, running local only")
		return localOnly
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := remote.Ping(probeCtx); err != nil {
		strategyLog.Warn("Remote store probe failed, running local only: %v", err)
		return localOnly
	}

	strategyLog.Info("Remote store reachable, local store is fallback")
	return &Strategy{
		Primary:  remote,
		Fallback: local,
		Local:    local,
		Merger:   remote,
	}
}

func (s *Strategy) Remote() bool {
	return s.Merger != nil
}

// withFallback runs fn on the primary repository and, if that store is
// unavailable, once more on the fallback. A NotFound from the fallback means
// the record only lives remotely, so the original error is kept.
func withFallback[T any](s *Strategy, op string, fn func(repository.EntityRepository) (T, error)) (T, string, error) {
	result, err := fn(s.Primary)
	if err == nil || s.Fallback == nil || !errors.Is(err, errors.CodeStoreUnavailable) {
		return result, s.Primary.Name(), err
	}

	strategyLog.Warn("%s: %s store unavailable, using %s: %v", op, s.Primary.Name(), s.Fallback.Name(), err)
	fallbackResult, fallbackErr := fn(s.Fallback)
	if errors.Is(fallbackErr, errors.CodeNotFound) {
		var zero T
		return zero, s.Primary.Name(), err
	}
	return fallbackResult, s.Fallback.Name(), fallbackErr
}

func writeWithFallback(s *Strategy, op string, fn func(repository.EntityRepository) error) (string, error) {
	_, source, err := withFallback(s, op, func(repo repository.EntityRepository) (struct{}, error) {
		return struct{}{}, fn(repo)
	})
	return source, err
}

// subscribeWithFallback subscribes on the primary. When that subscription
// dies, the local repository is read once and the callback gets that result.
func subscribeWithFallback[T any](
	s *Strategy,
	op string,
	callback func(T),
	subscribe func(repo repository.EntityRepository, onChange func(T), onError func(error)) repository.Unsubscribe,
) repository.Unsubscribe {
	return subscribe(s.Primary, callback, func(err error) {
		strategyLog.Warn("%s: subscription on %s ended: %v", op, s.Primary.Name(), err)
		if s.Primary == repository.EntityRepository(s.Local) {
			return
		}
		subscribe(s.Local, callback, func(err error) {
			strategyLog.Error("%s: local read after subscription failure: %v", op, err)
		})
	})
}
