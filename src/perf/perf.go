package perf

import (
	"context"
	"sync"
	"time"

	"git.handmade.network/hmn/forum/src/jobs"
)

type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time

	mu     sync.Mutex
	Blocks []PerfBlock
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	for rp.EndBlock() {
	}
	rp.End = time.Now()
}

// A BlockHandle ends exactly the block it was created for, which matters when
// SQL queries finish in a different order than they started.
type BlockHandle struct {
	rp  *RequestPerf
	idx int
}

func (rp *RequestPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return nil
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{rp: rp, idx: len(rp.Blocks) - 1}
}

func (h *BlockHandle) End() {
	if h == nil {
		return
	}
	h.rp.mu.Lock()
	defer h.rp.mu.Unlock()
	if h.rp.Blocks[h.idx].End.IsZero() {
		h.rp.Blocks[h.idx].End = time.Now()
	}
}

// EndBlock ends the most recently started block that is still open.
func (rp *RequestPerf) EndBlock() bool {
	if rp == nil {
		return false
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for i := len(rp.Blocks) - 1; i >= 0; i-- {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type PerfContextKey struct{}

func AttachPerf(ctx context.Context, p *RequestPerf) context.Context {
	return context.WithValue(ctx, PerfContextKey{}, p)
}

// ExtractPerf returns the request perf attached to ctx, or nil. Every method
// on a nil *RequestPerf is a no-op, so callers never need to check.
func ExtractPerf(ctx context.Context) *RequestPerf {
	p, _ := ctx.Value(PerfContextKey{}).(*RequestPerf)
	return p
}

// Slow requests kept around for the admin perf dump.
const maxStoredRequests = 200

type PerfStorage struct {
	AllRequests []RequestPerf
}

type PerfCollector struct {
	Job *jobs.Job

	in          chan *RequestPerf
	requestCopy chan chan PerfStorage
}

func RunPerfCollector() *PerfCollector {
	job := jobs.New("perf collector")
	collector := &PerfCollector{
		Job:         job,
		in:          make(chan *RequestPerf, 16),
		requestCopy: make(chan chan PerfStorage),
	}

	go func() {
		defer job.Finish()

		var storage PerfStorage
		for {
			select {
			case run := <-collector.in:
				storage.AllRequests = append(storage.AllRequests, RequestPerf{
					Route:  run.Route,
					Path:   run.Path,
					Method: run.Method,
					Start:  run.Start,
					End:    run.End,
					Blocks: run.Blocks,
				})
				if len(storage.AllRequests) > maxStoredRequests {
					storage.AllRequests = storage.AllRequests[len(storage.AllRequests)-maxStoredRequests:]
				}
			case resultChan := <-collector.requestCopy:
				resultChan <- PerfStorage{AllRequests: append([]RequestPerf(nil), storage.AllRequests...)}
			case <-job.Canceled():
				return
			}
		}
	}()

	return collector
}

func (c *PerfCollector) SubmitRun(run *RequestPerf) {
	if c == nil || run == nil {
		return
	}
	select {
	case c.in <- run:
	case <-c.Job.Canceled():
	}
}

func (c *PerfCollector) GetPerfCopy() *PerfStorage {
	resultChan := make(chan PerfStorage, 1)
	select {
	case c.requestCopy <- resultChan:
		result := <-resultChan
		return &result
	case <-c.Job.Canceled():
		return &PerfStorage{}
	}
}
