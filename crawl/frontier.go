package crawl

import "sync"

// frontier is the shared queue of not-yet-processed URLs. The visited set
// is updated under the same lock as the queue, so a URL can be claimed by
// exactly one worker and enqueued at most once per run.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	visited  map[string]bool
	inflight int
	aborted  bool
}

func newFrontier(seeds []string) *frontier {
	f := &frontier{visited: make(map[string]bool)}
	f.cond = sync.NewCond(&f.mu)
	for _, s := range seeds {
		f.add(s)
	}
	return f
}

// add enqueues a URL unless it has already been seen this run.
// Returns true if the URL was enqueued.
func (f *frontier) add(url string) bool {
	if url == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.aborted || f.visited[url] {
		return false
	}
	f.visited[url] = true
	f.queue = append(f.queue, url)
	f.cond.Signal()
	return true
}

// next claims the next URL. It blocks while the queue is empty but other
// workers are still in flight (they may discover more links). It returns
// ok=false when the frontier has drained or the run was aborted.
func (f *frontier) next() (url string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.aborted {
			return "", false
		}
		if len(f.queue) > 0 {
			url = f.queue[0]
			f.queue = f.queue[1:]
			f.inflight++
			return url, true
		}
		if f.inflight == 0 {
			// Drained: wake everyone else blocked here so they exit too.
			f.cond.Broadcast()
			return "", false
		}
		f.cond.Wait()
	}
}

// done marks a claimed URL as finished, successfully or not.
func (f *frontier) done() {
	f.mu.Lock()
	f.inflight--
	if f.inflight == 0 && len(f.queue) == 0 {
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

// abort stops the run: pending work is discarded and blocked workers wake.
func (f *frontier) abort() {
	f.mu.Lock()
	f.aborted = true
	f.queue = nil
	f.cond.Broadcast()
	f.mu.Unlock()
}
