package rss

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/task"
)

// SubmitFunc hands a newly created task record to the worker pool.
type SubmitFunc func(record *task.Record) error

// Poller periodically fetches the configured feeds and turns unseen
// entries into tasks. Feeds are fetched concurrently in small batches
// with a pause between batches so a long feed list does not burst.
type Poller struct {
	cfg    *config.Config
	store  *task.Store
	logger *slog.Logger
	submit SubmitFunc
	parser *gofeed.Parser

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	seeded bool
	seen   map[string]struct{}

	wait func(context.Context, time.Duration) error
}

// NewPoller constructs a poller. Submit may not be nil.
func NewPoller(cfg *config.Config, store *task.Store, logger *slog.Logger, submit SubmitFunc) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		cfg:    cfg,
		store:  store,
		logger: logger,
		submit: submit,
		parser: gofeed.NewParser(),
		seen:   make(map[string]struct{}),
		wait:   sleepContext,
	}
}

// Start launches the polling loop. With ingestion disabled or no feeds
// configured it is a noop.
func (p *Poller) Start(ctx context.Context) error {
	if !p.cfg.RSS.Enabled || len(p.cfg.RSS.Feeds) == 0 {
		p.logger.Debug("rss ingestion disabled")
		return nil
	}
	if p.submit == nil {
		return errors.New("rss poller submit function not configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("rss poller already running")
	}

	interval := time.Duration(p.cfg.RSS.PollIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.loop(runCtx, interval)
	p.logger.Info("rss polling started",
		logging.Int("feeds", len(p.cfg.RSS.Feeds)),
		logging.Duration("interval", interval),
	)
	return nil
}

// Stop terminates the polling loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()
	for {
		if _, err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("rss poll pass failed", logging.Error(err))
		}
		if err := p.wait(ctx, interval); err != nil {
			return
		}
	}
}

// PollOnce fetches every configured feed once and submits tasks for
// entries not seen before. It returns the number of tasks created. A
// single broken feed is logged and skipped; only a cancelled context
// aborts the pass.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	if err := p.loadSeen(ctx); err != nil {
		return 0, err
	}

	batchSize := p.cfg.RSS.FetchBatchSize
	if batchSize < 1 {
		batchSize = 5
	}
	pause := time.Duration(p.cfg.RSS.BatchPauseSeconds) * time.Second

	feeds := p.cfg.RSS.Feeds
	created := 0
	for start := 0; start < len(feeds); start += batchSize {
		if start > 0 && pause > 0 {
			if err := p.wait(ctx, pause); err != nil {
				return created, err
			}
		}
		end := start + batchSize
		if end > len(feeds) {
			end = len(feeds)
		}

		links, err := p.fetchBatch(ctx, feeds[start:end])
		if err != nil {
			return created, err
		}
		for _, link := range links {
			submitted, err := p.submitEntry(ctx, link)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return created, err
				}
				p.logger.Warn("failed to create task for feed entry",
					logging.String("url", link),
					logging.Error(err),
				)
				continue
			}
			if submitted {
				created++
			}
		}
	}

	if created > 0 {
		p.logger.Info("rss poll pass finished", logging.Int("new_tasks", created))
	}
	return created, nil
}

// fetchBatch parses one batch of feeds concurrently and returns the entry
// links in feed order. Parse failures are logged per feed, not returned.
func (p *Poller) fetchBatch(ctx context.Context, urls []string) ([]string, error) {
	results := make([][]string, len(urls))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			feed, err := p.parser.ParseURLWithContext(url, groupCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				p.logger.Warn("failed to fetch feed",
					logging.String("feed", url),
					logging.Error(err),
				)
				return nil
			}
			links := make([]string, 0, len(feed.Items))
			for _, item := range feed.Items {
				link := strings.TrimSpace(item.Link)
				if link != "" {
					links = append(links, link)
				}
			}
			results[i] = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var links []string
	for _, feedLinks := range results {
		links = append(links, feedLinks...)
	}
	return links, nil
}

func (p *Poller) submitEntry(ctx context.Context, link string) (bool, error) {
	p.mu.Lock()
	_, dup := p.seen[link]
	if !dup {
		p.seen[link] = struct{}{}
	}
	p.mu.Unlock()
	if dup {
		return false, nil
	}

	record, err := p.store.New(ctx, link)
	if err != nil {
		return false, err
	}
	if err := p.submit(record); err != nil {
		return false, err
	}
	p.logger.Info("feed entry queued",
		logging.String(logging.FieldTaskID, record.TaskID),
		logging.String("url", link),
	)
	return true, nil
}

// loadSeen seeds deduplication with every URL already known to the store,
// so a restart does not re-ingest old entries.
func (p *Poller) loadSeen(ctx context.Context) error {
	p.mu.Lock()
	seeded := p.seeded
	p.mu.Unlock()
	if seeded {
		return nil
	}

	records, err := p.store.List(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	for _, record := range records {
		p.seen[record.URL] = struct{}{}
	}
	p.seeded = true
	p.mu.Unlock()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
