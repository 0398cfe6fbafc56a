package ledger

import (
	"context"
	"fmt"
)

// BlockResult classifies one block during integrity replay.
type BlockResult struct {
	Index     int       `json:"index"`
	EventName EventName `json:"eventName"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message"`
}

// Report summarizes the integrity replay of one stream.
type Report struct {
	StreamID      string        `json:"streamId"`
	TotalBlocks   int           `json:"totalBlocks"`
	ValidBlocks   int           `json:"validBlocks"`
	InvalidBlocks int           `json:"invalidBlocks"`
	Results       []BlockResult `json:"results"`
}

// Verify replays the stream's blocks in append order, recomputing every
// digest and cross-checking chain linkage. It never writes and reads only
// the store, so it is safe to run at any time alongside appends.
//
// Block 0 is valid iff its previous hash is empty. Block i>0 is valid iff
// its previous hash equals the stored hash of block i-1 and its stored
// hash equals the recomputed digest of its stored fields. Integrity
// violations are reported, never repaired.
func (s *Service) Verify(ctx context.Context, streamID string) (*Report, error) {
	blocks, err := s.Ledger(ctx, streamID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StreamID: streamID,
		Results:  make([]BlockResult, 0, len(blocks)),
	}

	for i, block := range blocks {
		result := BlockResult{Index: i, EventName: block.EventName}

		expectedPrev := ""
		if i > 0 {
			expectedPrev = blocks[i-1].CurrentHash
		}
		if block.PreviousHash != expectedPrev {
			result.Status = "invalid"
			result.Reason = ReasonPreviousHashMismatch
			result.Message = fmt.Sprintf("previous hash mismatch: expected %q, got %q", expectedPrev, block.PreviousHash)
			report.Results = append(report.Results, result)
			continue
		}

		computed, err := ComputeHash(block)
		if err != nil {
			return nil, fmt.Errorf("recompute hash for block %d: %w", i, err)
		}
		if computed != block.CurrentHash {
			result.Status = "invalid"
			result.Reason = ReasonHashMismatch
			result.Message = fmt.Sprintf("hash mismatch: stored %s, computed %s", block.CurrentHash, computed)
			report.Results = append(report.Results, result)
			continue
		}

		result.Status = "valid"
		result.Message = "block is valid"
		report.Results = append(report.Results, result)
	}

	report.TotalBlocks = len(blocks)
	for _, r := range report.Results {
		if r.Status == "valid" {
			report.ValidBlocks++
		} else {
			report.InvalidBlocks++
		}
	}
	return report, nil
}
