package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/agriwater/core/metrics"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/infra/logger"
	"github.com/kilianp07/agriwater/internal/eventbus"
)

// StartEventCollector subscribes to the run event bus and records stage
// timings on sinks implementing StageRecorder. It stops when the context is
// canceled or the bus is closed; the returned channel is closed on exit.
// Sink errors are logged and do not stop the collector. A nil log writes to
// the "event-collector" component.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[optimizer.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.StageRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	if log == nil {
		log = logger.New("event-collector")
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				err := rec.RecordStage(coremetrics.StageEvent{
					RunID:   ev.RunID,
					Stage:   string(ev.Stage),
					Elapsed: ev.Elapsed,
					Time:    ev.Time,
				})
				if err != nil {
					log.Errorf("record stage %s of run %s: %v", ev.Stage, ev.RunID, err)
				}
			}
		}
	}()
	return done
}
