// Package service wires the long-running services of a node around the
// submission pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/types"
)

// WitnessSink receives ledger root attestations. Implementations submit the
// attestation to an external witness (a transparency log, a bulletin board,
// a chain); confirmation tracking and retries are theirs, the anchor
// service only hands over the value.
type WitnessSink interface {
	Publish(ctx context.Context, attestation *types.RootAttestation) error
}

// AnchorService periodically publishes the current root of every question
// ledger to a witness sink. A root that did not move since the last tick is
// skipped.
type AnchorService struct {
	stor     *storage.Storage
	sink     WitnessSink
	interval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	lastRoots map[string]string
}

// NewAnchorService creates an anchor service publishing to sink every
// interval.
func NewAnchorService(stor *storage.Storage, sink WitnessSink, interval time.Duration) *AnchorService {
	return &AnchorService{
		stor:      stor,
		sink:      sink,
		interval:  interval,
		lastRoots: make(map[string]string),
	}
}

// Start begins the anchoring loop. It returns an error if the service is
// already running.
func (as *AnchorService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.cancel != nil {
		return fmt.Errorf("anchor service already running")
	}
	ctx, as.cancel = context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(as.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := as.anchorAll(ctx); err != nil {
					log.Warnw("anchor pass failed", "err", err.Error())
				}
			}
		}
	}()
	log.Infow("anchor service started", "interval", as.interval.String())
	return nil
}

// Stop halts the anchoring loop.
func (as *AnchorService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// anchorAll publishes the attestation of every question ledger whose root
// moved since the previous pass. Publications run concurrently, one failure
// does not block the others.
func (as *AnchorService) anchorAll(ctx context.Context) error {
	elections, err := as.stor.ListElections()
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, electionID := range elections {
		questions, err := as.stor.ListBallotQuestions(electionID)
		if err != nil {
			return err
		}
		for _, question := range questions {
			attestation, err := as.stor.PendingAttestation(electionID, question.ID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue // no votes yet
				}
				return err
			}
			key := fmt.Sprintf("%x/%x", electionID, question.ID)
			as.mu.Lock()
			moved := as.lastRoots[key] != attestation.Root.Hex()
			as.mu.Unlock()
			if !moved {
				continue
			}
			g.Go(func() error {
				if err := as.sink.Publish(ctx, attestation); err != nil {
					return fmt.Errorf("publish attestation for question %s: %w",
						attestation.QuestionID.String(), err)
				}
				as.mu.Lock()
				as.lastRoots[key] = attestation.Root.Hex()
				as.mu.Unlock()
				log.Debugw("root anchored", "questionId", attestation.QuestionID.String(),
					"root", attestation.Root.String(), "votes", attestation.VoteCount)
				return nil
			})
		}
	}
	return g.Wait()
}
