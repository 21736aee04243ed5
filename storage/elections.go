package storage

import (
	"errors"
	"fmt"

	"github.com/veritasvote/veritas-node/types"
)

// SetElection creates or updates an election record.
func (s *Storage) SetElection(e *types.Election) error {
	if e == nil || len(e.ID) == 0 {
		return fmt.Errorf("invalid election record")
	}
	return s.setArtifact(electionPrefix, e.ID, e)
}

// Election retrieves the election with the given id. Returns ErrNotFound if
// it does not exist.
func (s *Storage) Election(electionID types.HexBytes) (*types.Election, error) {
	e := new(types.Election)
	if err := s.getArtifact(electionPrefix, electionID, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SetElectionPhase transitions the election to the given phase.
func (s *Storage) SetElectionPhase(electionID types.HexBytes, phase types.ElectionPhase) error {
	e, err := s.Election(electionID)
	if err != nil {
		return err
	}
	e.Phase = phase
	return s.setArtifact(electionPrefix, e.ID, e)
}

// ListElections returns the ids of all stored elections.
func (s *Storage) ListElections() ([]types.HexBytes, error) {
	keys, err := s.listArtifactKeys(electionPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]types.HexBytes, len(keys))
	for i, k := range keys {
		ids[i] = types.HexBytes(k)
	}
	return ids, nil
}

// SetBallotQuestion stores a ballot question under its election.
func (s *Storage) SetBallotQuestion(q *types.BallotQuestion) error {
	if q == nil || len(q.ID) == 0 || len(q.ElectionID) == 0 {
		return fmt.Errorf("invalid ballot question record")
	}
	if !q.Type.Valid() {
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return s.setArtifact(questionPrefix, joinKey(q.ElectionID, q.ID), q)
}

// BallotQuestion retrieves one question of an election.
func (s *Storage) BallotQuestion(electionID, questionID types.HexBytes) (*types.BallotQuestion, error) {
	q := new(types.BallotQuestion)
	if err := s.getArtifact(questionPrefix, joinKey(electionID, questionID), q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListBallotQuestions returns all questions of an election.
func (s *Storage) ListBallotQuestions(electionID types.HexBytes) ([]*types.BallotQuestion, error) {
	keys, err := s.listArtifactKeys(questionPrefix)
	if err != nil {
		return nil, err
	}
	var questions []*types.BallotQuestion
	for _, k := range keys {
		if !matchesKeyParts(k, electionID) {
			continue
		}
		q := new(types.BallotQuestion)
		if err := s.getArtifact(questionPrefix, k, q); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}
