// Package connect implements §4.6: discovering undirected similarity edges
// between items by comparing per-item mean embedding vectors.
package connect

import (
	"context"

	"github.com/blackvault/blackvault/internal/store"
)

// DefaultThreshold is the minimum cosine similarity at which two items are
// considered connected.
const DefaultThreshold = 0.75

// Connector satisfies ingest.Connector.
type Connector struct {
	Store     store.Store
	Threshold float64
}

func (c *Connector) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}

// ConnectItem computes itemID's mean chunk-embedding vector, compares it
// against every other item's mean vector, and upserts a Connection for every
// pair at or above the similarity threshold. A zero-norm mean vector (no
// embeddings yet) yields no connections.
func (c *Connector) ConnectItem(ctx context.Context, itemID int64) error {
	c.Store.Lock()
	mine, err := meanVector(ctx, c.Store, itemID)
	if err != nil {
		c.Store.Unlock()
		return err
	}
	if mine == nil {
		c.Store.Unlock()
		return nil
	}

	others, err := c.Store.AllItemsWithEmbeddings(ctx)
	if err != nil {
		c.Store.Unlock()
		return err
	}
	c.Store.Unlock()

	threshold := c.threshold()
	for _, otherID := range others {
		if otherID == itemID {
			continue
		}

		c.Store.Lock()
		theirs, meanErr := meanVector(ctx, c.Store, otherID)
		c.Store.Unlock()
		if meanErr != nil || theirs == nil {
			continue
		}

		score := store.CosineSimilarity(mine, theirs)
		if float64(score) < threshold {
			continue
		}

		c.Store.Lock()
		putErr := c.Store.PutConnection(ctx, itemID, otherID, float64(score))
		c.Store.Unlock()
		if putErr != nil {
			return putErr
		}
	}

	return nil
}

// meanVector averages every chunk embedding belonging to itemID. Callers
// must hold the store lock.
func meanVector(ctx context.Context, s store.Store, itemID int64) ([]float32, error) {
	embeddings, err := s.GetEmbeddings(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	dims := len(embeddings[0].Vector)
	sum := make([]float32, dims)
	for _, e := range embeddings {
		for i, v := range e.Vector {
			if i < dims {
				sum[i] += v
			}
		}
	}
	n := float32(len(embeddings))
	var normSq float32
	for i := range sum {
		sum[i] /= n
		normSq += sum[i] * sum[i]
	}
	if normSq == 0 {
		return nil, nil
	}
	return sum, nil
}
