package compose

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// defaultWorkers is the number of concurrent render goroutines.
const defaultWorkers = 2

// ErrPoolClosed is reported for jobs submitted after or during Close.
var ErrPoolClosed = errors.New("compose: pool closed")

// Frame is a published frame handed to a pool callback.
type Frame struct {
	Image  *image.RGBA
	Result Result
}

// renderJob is an internal unit of work for the pool.
type renderJob struct {
	ctx      context.Context
	req      Request
	callback func(Frame, error)
}

// Pool renders stateless requests on a bounded set of workers. Each worker
// owns a long-lived Compositor, so asset caches stay warm between requests
// that share assets.
type Pool struct {
	workers []*Compositor
	jobs    chan renderJob
	wg      sync.WaitGroup

	mu       sync.RWMutex // held for reading while sending jobs
	closed   bool
	stopOnce sync.Once
	stop     chan struct{}
}

// NewPool creates a pool of workers compositors sharing loader and book.
// If workers is <= 0, defaultWorkers is used. The pool starts immediately.
func NewPool(loader *asset.Loader, book *text.FontBook, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &Pool{
		jobs: make(chan renderJob, workers*4),
		stop: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		c := New(loader, book, WithLogger(logger))
		p.workers = append(p.workers, c)
		p.wg.Add(1)
		go p.worker(c)
	}
	return p
}

// RenderAsync submits req. The callback runs on a worker goroutine when the
// render completes or fails. The returned cancel function prevents the
// callback from being called (best-effort; a render already running still
// completes).
//
// This method never blocks the caller: if the queue is full the job is
// handed over from a new goroutine.
func (p *Pool) RenderAsync(ctx context.Context, req Request, callback func(Frame, error)) func() {
	cancelled := make(chan struct{})
	var once sync.Once

	wrapped := func(f Frame, err error) {
		select {
		case <-cancelled:
			return
		default:
			callback(f, err)
		}
	}
	job := renderJob{ctx: ctx, req: req, callback: wrapped}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		wrapped(Frame{}, ErrPoolClosed)
		return func() { once.Do(func() { close(cancelled) }) }
	}
	select {
	case p.jobs <- job:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		go p.submit(job)
	}

	return func() { once.Do(func() { close(cancelled) }) }
}

// submit blocks until job is queued, the job context ends or the pool stops.
func (p *Pool) submit(job renderJob) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		job.callback(Frame{}, ErrPoolClosed)
		return
	}
	select {
	case p.jobs <- job:
	case <-job.ctx.Done():
		job.callback(Frame{}, job.ctx.Err())
	case <-p.stop:
		job.callback(Frame{}, ErrPoolClosed)
	}
}

// Render submits req and waits for its frame.
func (p *Pool) Render(ctx context.Context, req Request) (Frame, error) {
	type outcome struct {
		f   Frame
		err error
	}
	done := make(chan outcome, 1)
	cancel := p.RenderAsync(ctx, req, func(f Frame, err error) {
		done <- outcome{f, err}
	})
	select {
	case o := <-done:
		return o.f, o.err
	case <-ctx.Done():
		cancel()
		return Frame{}, ctx.Err()
	}
}

// Close shuts down the pool. Queued jobs are still rendered; jobs that
// arrive during shutdown fail with ErrPoolClosed. Worker compositors are
// closed last.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.wg.Wait()

	drain:
		for {
			select {
			case job := <-p.jobs:
				job.callback(Frame{}, ErrPoolClosed)
			default:
				break drain
			}
		}
		for _, c := range p.workers {
			c.Close()
		}
	})
}

// worker processes jobs from the queue until the pool is closed.
func (p *Pool) worker(c *Compositor) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			// Drain remaining jobs before exiting.
			for {
				select {
				case job := <-p.jobs:
					p.run(c, job)
				default:
					return
				}
			}
		case job := <-p.jobs:
			p.run(c, job)
		}
	}
}

func (p *Pool) run(c *Compositor, job renderJob) {
	if err := job.ctx.Err(); err != nil {
		job.callback(Frame{}, err)
		return
	}
	res, err := c.Render(job.ctx, job.req)
	if err != nil {
		job.callback(Frame{}, err)
		return
	}
	job.callback(Frame{Image: c.Visible().Snapshot(), Result: res}, nil)
}
