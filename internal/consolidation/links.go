package consolidation

import (
	"context"

	"github.com/memcore-dev/memcore/pkg/types"
)

// RecordFetcher retrieves a record by id regardless of which tier holds it,
// since a LINK target may have moved since it was recorded.
type RecordFetcher interface {
	FetchByID(ctx context.Context, id string) (*types.Record, error)
}

// RelatedGraph walks a record's links breadth-first up to maxDepth, modeled
// on the teacher's FindParent/FindChildren depth-bounded relationship walk.
// Unreachable link targets (forgotten or deleted since the link was made)
// are skipped rather than failing the whole walk.
func RelatedGraph(ctx context.Context, fetch RecordFetcher, rootID string, maxDepth int) ([]*types.Record, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	type queued struct {
		id    string
		depth int
	}

	visited := map[string]bool{rootID: true}
	queue := []queued{{rootID, 0}}
	var result []*types.Record

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		rec, err := fetch.FetchByID(ctx, cur.id)
		if err != nil {
			continue
		}
		if cur.id != rootID {
			result = append(result, rec)
		}
		if cur.depth >= maxDepth {
			continue
		}
		for linkedID := range rec.Links {
			if !visited[linkedID] {
				visited[linkedID] = true
				queue = append(queue, queued{linkedID, cur.depth + 1})
			}
		}
	}
	return result, nil
}
