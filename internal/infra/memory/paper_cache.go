package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-flow-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PaperLoader fetches a paper with its questions from the backing store.
type PaperLoader interface {
	LoadPaper(ctx context.Context, paperID string) (domain.ExamPaper, error)
}

// PaperCache keeps papers in process memory with a TTL so a sitting does not
// reload the same questions for every candidate.
type PaperCache struct {
	loader PaperLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedPaper
}

type cachedPaper struct {
	paper     domain.ExamPaper
	expiresAt time.Time
}

func NewPaperCache(loader PaperLoader, ttl time.Duration) *PaperCache {
	return &PaperCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPaper),
	}
}

func (c *PaperCache) GetPaper(ctx context.Context, paperID string) (domain.ExamPaper, error) {
	if paper, ok := c.lookup(paperID); ok {
		return paper, nil
	}

	result, err, _ := c.sf.Do(paperID, func() (interface{}, error) {
		if paper, ok := c.lookup(paperID); ok {
			return paper, nil
		}

		paper, err := c.loader.LoadPaper(ctx, paperID)
		if err != nil {
			return domain.ExamPaper{}, err
		}

		c.mu.Lock()
		c.cache[paperID] = cachedPaper{
			paper:     paper,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return paper, nil
	})
	if err != nil {
		return domain.ExamPaper{}, err
	}
	return result.(domain.ExamPaper), nil
}

// Invalidate drops a cached paper after its questions change.
func (c *PaperCache) Invalidate(_ context.Context, paperID string) {
	c.mu.Lock()
	delete(c.cache, paperID)
	c.mu.Unlock()
	c.sf.Forget(paperID)
}

func (c *PaperCache) lookup(paperID string) (domain.ExamPaper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[paperID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.ExamPaper{}, false
	}
	return entry.paper, true
}

// ttlWithJitter must be called with mu held; rand.Rand is not safe for concurrent use.
func (c *PaperCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
