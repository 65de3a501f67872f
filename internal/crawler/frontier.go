package crawler

import (
	"container/heap"
	"sync"
)

// Frontier is the priority-ordered, deduplicated queue of URLs awaiting fetch.
// It also owns the visited set.
//
// Every URL the frontier has ever accepted is in exactly one of four states:
// queued, in flight (popped but not yet resolved), visited, or abandoned.
// Push is a no-op for a URL in any of these states, so each URL is dispatched
// at most once per run.
//
// Design decision: We back the queue with container/heap plus hash maps
// rather than a sorted slice because:
//  1. Push and membership checks stay sub-linear on large sites
//  2. Pop is deterministic thanks to the insertion sequence tie-break
//  3. The maps give O(1) answers for IsVisited, used by the crawl loop
//
// Frontier is safe for concurrent use.
type Frontier struct {
	mu sync.Mutex

	queue frontierHeap
	seq   uint64

	queued    map[string]struct{}
	inflight  map[string]struct{}
	visited   map[string]struct{}
	abandoned map[string]struct{}
}

// NewFrontier creates an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		queue:     make(frontierHeap, 0),
		queued:    make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
		visited:   make(map[string]struct{}),
		abandoned: make(map[string]struct{}),
	}
}

// Push enqueues pageURL at the given priority. Lower values are served first;
// among equal priorities the URL pushed first is served first.
// It returns false and does nothing if the URL is already known.
func (f *Frontier) Push(pageURL string, priority int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.knownLocked(pageURL) {
		return false
	}

	heap.Push(&f.queue, frontierEntry{url: pageURL, priority: priority, seq: f.seq})
	f.seq++
	f.queued[pageURL] = struct{}{}
	return true
}

// Pop removes and returns the queued URL with the lowest priority value.
// The URL moves to the in-flight state until MarkVisited or Abandon is called.
// It returns ErrEmptyFrontier when nothing is queued.
func (f *Frontier) Pop() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queue.Len() == 0 {
		return "", ErrEmptyFrontier
	}

	entry, _ := heap.Pop(&f.queue).(frontierEntry)
	delete(f.queued, entry.url)
	f.inflight[entry.url] = struct{}{}
	return entry.url, nil
}

// IsEmpty reports whether no URL is queued.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// InFlight returns the number of popped URLs that are not yet resolved.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

// MarkVisited records that pageURL was fetched and extracted.
// A visited URL is never queued again.
func (f *Frontier) MarkVisited(pageURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inflight, pageURL)
	delete(f.abandoned, pageURL)
	f.visited[pageURL] = struct{}{}
}

// Abandon records that pageURL was denied or failed.
// It is not marked visited, and it is not queued again during this run.
func (f *Frontier) Abandon(pageURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inflight, pageURL)
	if _, ok := f.visited[pageURL]; ok {
		return
	}
	f.abandoned[pageURL] = struct{}{}
}

// IsVisited reports whether pageURL has been marked visited.
func (f *Frontier) IsVisited(pageURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[pageURL]
	return ok
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// knownLocked reports whether pageURL is in any state. Caller holds mu.
func (f *Frontier) knownLocked(pageURL string) bool {
	if _, ok := f.queued[pageURL]; ok {
		return true
	}
	if _, ok := f.inflight[pageURL]; ok {
		return true
	}
	if _, ok := f.visited[pageURL]; ok {
		return true
	}
	_, ok := f.abandoned[pageURL]
	return ok
}

// frontierEntry is one queued URL.
type frontierEntry struct {
	url      string
	priority int
	seq      uint64
}

// frontierHeap implements heap.Interface ordered by (priority, seq).
type frontierHeap []frontierEntry

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontierHeap) Push(x any) {
	entry, ok := x.(frontierEntry)
	if !ok {
		return
	}
	*h = append(*h, entry)
}

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
