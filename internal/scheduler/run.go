package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Activity is one long-running loop of a session.
type Activity interface {
	Run(ctx context.Context, ctrl *Controller) error
}

// Run starts every activity and returns once all of them have quiesced. The first
// activity to return stops the others through ctrl.
func Run(ctx context.Context, ctrl *Controller, activities ...Activity) error {
	g, gctx := errgroup.WithContext(ctx)
	go func() {
		select {
		case <-gctx.Done():
			ctrl.Stop()
		case <-ctrl.Done():
		}
	}()
	for _, act := range activities {
		act := act
		g.Go(func() error {
			defer ctrl.Stop()
			return act.Run(gctx, ctrl)
		})
	}
	return g.Wait()
}
