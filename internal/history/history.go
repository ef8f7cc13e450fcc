package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// Append merges turns onto whatever is stored at anchor, truncates the result
// to the newest maxTurns turns and writes it back.
//
// The read and the write are separate store calls. Two concurrent appends to
// the same anchor can lose one side's turns; the last writer wins.
func Append(ctx context.Context, s Store, anchor types.Anchor, turns []types.Turn, ttl time.Duration, maxTurns int) ([]types.Turn, error) {
	existing, err := s.Get(ctx, anchor)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", anchor, err)
	}

	merged := make([]types.Turn, 0, len(existing)+len(turns))
	merged = append(merged, existing...)
	merged = append(merged, turns...)
	merged = Truncate(merged, maxTurns)

	if err := s.Set(ctx, anchor, merged, ttl); err != nil {
		return nil, fmt.Errorf("write %s: %w", anchor, err)
	}

	logging.HistoryDebug("stored %d turns under %s (%d existing)", len(merged), anchor, len(existing))
	return merged, nil
}

// Truncate keeps the newest max turns. A max <= 0 disables the cap.
// A model turn left at the front by the cut is dropped as well so the
// sequence still opens with the user.
func Truncate(turns []types.Turn, max int) []types.Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	turns = turns[len(turns)-max:]
	for len(turns) > 0 && turns[0].Role == types.RoleModel {
		turns = turns[1:]
	}
	return turns
}

func encodeTurns(turns []types.Turn) ([]byte, error) {
	if turns == nil {
		turns = []types.Turn{}
	}
	return json.Marshal(turns)
}

func decodeTurns(data []byte) ([]types.Turn, error) {
	var turns []types.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("decode turns: turn %d has unknown role %q", i, t.Role)
		}
	}
	return turns, nil
}

func cloneTurns(turns []types.Turn) []types.Turn {
	if turns == nil {
		return nil
	}
	out := make([]types.Turn, len(turns))
	copy(out, turns)
	return out
}
