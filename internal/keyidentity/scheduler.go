package keyidentity

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// RotationScheduler periodically sweeps pairwise identities and prunes
// expired session keys, per the rotation policy in §4.1.
type RotationScheduler struct {
	core *Core
	cron *cron.Cron
	log  logr.Logger

	// requesterIDs lists the requesters whose pairwise identity should be
	// checked for rotation on each sweep. A node tracks this from its
	// Request Inbox / Contract Engine activity; the scheduler itself has
	// no opinion on where the list comes from.
	requesterIDs func() []string
}

// NewRotationScheduler builds a scheduler that checks rotation due-ness
// once a day, sufficient resolution for a 30-day pairwise policy and a
// 1-day network-identifier policy.
func NewRotationScheduler(core *Core, log logr.Logger, requesterIDs func() []string) *RotationScheduler {
	return &RotationScheduler{
		core:         core,
		cron:         cron.New(),
		log:          log,
		requesterIDs: requesterIDs,
	}
}

// Start registers the daily rotation sweep and starts the cron scheduler.
func (s *RotationScheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@daily", func() { s.sweep(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *RotationScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *RotationScheduler) sweep(ctx context.Context) {
	pruned := s.core.PruneExpiredSessions()
	if pruned > 0 {
		s.log.V(1).Info("pruned expired session keys", "count", pruned)
	}

	if s.requesterIDs == nil {
		return
	}
	for _, requesterID := range s.requesterIDs() {
		if !s.core.PairwiseDueForRotation(requesterID) {
			continue
		}
		prev, next, err := s.core.RotatePairwiseDID(ctx, requesterID)
		if err != nil {
			s.log.Error(err, "pairwise rotation failed", "requester_id", requesterID)
			continue
		}
		s.log.Info("rotated pairwise identity", "requester_id", requesterID, "previous_did", prev, "new_did", next)
	}
}
