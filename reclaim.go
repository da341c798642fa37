package compute

import "sync"

// reclaimList holds resources whose destruction is deferred until the
// device is known to be done with them. Entries are kept in registration
// order so that a drain can take exactly the ones registered before a
// given point.
type reclaimList[T comparable] struct {
	mu     sync.Mutex
	items  []T
	index  map[T]struct{}
	closed bool
	done   map[T]struct{} // handed out after close
}

// add appends v. It reports false if v is already listed or the list has
// been closed.
func (l *reclaimList[T]) add(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	if l.index == nil {
		l.index = make(map[T]struct{})
	}
	if _, ok := l.index[v]; ok {
		return false
	}
	l.index[v] = struct{}{}
	l.items = append(l.items, v)
	return true
}

// len returns the number of listed resources.
func (l *reclaimList[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// take removes and returns the first n entries.
func (l *reclaimList[T]) take(n int) []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	n = min(n, len(l.items))
	out := make([]T, n)
	copy(out, l.items[:n])
	for _, v := range out {
		delete(l.index, v)
	}
	l.items = append(l.items[:0], l.items[n:]...)
	return out
}

// close removes every entry and rejects further additions.
func (l *reclaimList[T]) close() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.items
	if !l.closed {
		l.done = l.index
		if l.done == nil {
			l.done = make(map[T]struct{})
		}
	}
	l.items = nil
	l.index = nil
	l.closed = true
	return out
}

// settle reports whether v, offered after close, still has to be
// destroyed. It returns true at most once per value and never for a value
// close already returned.
func (l *reclaimList[T]) settle(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		return false
	}
	if _, ok := l.done[v]; ok {
		return false
	}
	l.done[v] = struct{}{}
	return true
}
