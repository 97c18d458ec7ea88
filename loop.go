package ddns

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type phase int

const (
	phaseInitial phase = iota
	phaseSteady
)

// loopState is everything Run carries from one attempt to the next.
type loopState struct {
	phase   phase
	settled bool // previous attempt found the record already up to date
}

type notice int

const (
	noticeNone notice = iota
	noticeUpdated
	noticeUnchanged
	noticeFailed
)

// decide picks the log line for an attempt and returns the state for the next one.
//
// Updates and failures are always reported. An unchanged record is reported
// once when it follows a failure, an update or the start of the loop, and
// stays quiet while it keeps repeating. The unchanged result right after an
// update is therefore reported too.
func decide(s loopState, o Outcome) (notice, loopState) {
	next := loopState{phase: phaseSteady, settled: o == Unchanged}
	switch o {
	case Updated:
		return noticeUpdated, next
	case Unchanged:
		if s.phase == phaseSteady && s.settled {
			return noticeNone, next
		}
		return noticeUnchanged, next
	default:
		return noticeFailed, next
	}
}

// Run calls Reconcile right away and then again interval after each attempt completes,
// until ctx is done. Attempt errors are logged and never stop the loop.
// The returned error is always ctx.Err().
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := c.logger.WithField("task", "update")

	var state loopState
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		state = c.attempt(ctx, log, state)
		timer.Reset(interval)
	}
}

func (c *Client) attempt(ctx context.Context, log logrus.FieldLogger, state loopState) loopState {
	res, err := c.Reconcile(ctx)
	if err != nil && ctx.Err() != nil {
		// shutting down; the failure says nothing about the record
		return state
	}
	if err != nil {
		res.Outcome = Failed
	}
	observeReconcile(res.Outcome)

	n, next := decide(state, res.Outcome)
	switch n {
	case noticeUpdated:
		log.WithField("previous", res.Previous).Infof("update domain record [%s] -> [%s]", c.rr, res.IP)
	case noticeUnchanged:
		log.Infof("exist domain record [%s] = [%s]", c.rr, res.IP)
	case noticeFailed:
		log.WithError(err).Warn("update failed")
	}
	return next
}
