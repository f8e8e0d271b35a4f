package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"exam-flow-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PaperLoader fetches a paper with its questions from the backing store.
type PaperLoader interface {
	LoadPaper(ctx context.Context, paperID string) (domain.ExamPaper, error)
}

const (
	metaField      = "meta"
	questionPrefix = "q:"
)

// PaperCache shares papers between instances through Redis and falls back to a
// loader on a miss. Each paper is one hash:
//
//	HSET exam:paper:{paperID} meta {paper header json} q:{questionID} {question json}
type PaperCache struct {
	client *redis.Client
	loader PaperLoader
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewPaperCache(client *redis.Client, loader PaperLoader, ttl time.Duration, log *zap.Logger) *PaperCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaperCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *PaperCache) GetPaper(ctx context.Context, paperID string) (domain.ExamPaper, error) {
	if paper, ok := c.cached(ctx, paperID); ok {
		return paper, nil
	}

	result, err, _ := c.sf.Do(paperID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if paper, ok := c.cached(ctx, paperID); ok {
			return paper, nil
		}

		paper, err := c.loader.LoadPaper(ctx, paperID)
		if err != nil {
			return domain.ExamPaper{}, err
		}
		if err := c.store(ctx, paper); err != nil {
			c.log.Warn("paper cache fill failed", zap.String("paper_id", paperID), zap.Error(err))
		}
		return paper, nil
	})
	if err != nil {
		return domain.ExamPaper{}, err
	}
	return result.(domain.ExamPaper), nil
}

// Invalidate removes the cached paper so the next read reloads it.
func (c *PaperCache) Invalidate(ctx context.Context, paperID string) {
	if err := c.client.Del(ctx, c.key(paperID)).Err(); err != nil {
		c.log.Warn("paper cache invalidate failed", zap.String("paper_id", paperID), zap.Error(err))
	}
	c.sf.Forget(paperID)
}

func (c *PaperCache) cached(ctx context.Context, paperID string) (domain.ExamPaper, bool) {
	fields, err := c.client.HGetAll(ctx, c.key(paperID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.ExamPaper{}, false
	}
	paper, err := decodePaper(fields)
	if err != nil {
		c.log.Warn("dropping unreadable cached paper", zap.String("paper_id", paperID), zap.Error(err))
		return domain.ExamPaper{}, false
	}
	return paper, true
}

func (c *PaperCache) store(ctx context.Context, paper domain.ExamPaper) error {
	header := paper
	header.Questions = nil
	meta, err := json.Marshal(header)
	if err != nil {
		return err
	}

	values := []interface{}{metaField, meta}
	for _, q := range paper.Questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return err
		}
		values = append(values, questionPrefix+q.ID, raw)
	}

	key := c.key(paper.ID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values...)
	if ttl := c.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func decodePaper(fields map[string]string) (domain.ExamPaper, error) {
	var paper domain.ExamPaper
	meta, ok := fields[metaField]
	if !ok {
		return paper, fmt.Errorf("missing %s field", metaField)
	}
	if err := json.Unmarshal([]byte(meta), &paper); err != nil {
		return paper, err
	}
	for field, raw := range fields {
		if !strings.HasPrefix(field, questionPrefix) {
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return paper, err
		}
		paper.Questions = append(paper.Questions, q)
	}
	sort.Slice(paper.Questions, func(i, j int) bool { return paper.Questions[i].Order < paper.Questions[j].Order })
	return paper, nil
}

func (c *PaperCache) key(paperID string) string {
	return "exam:paper:" + paperID
}

func (c *PaperCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
