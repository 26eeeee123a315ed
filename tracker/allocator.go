package tracker

import "sync"

// PortAllocator hands out room ports from a counter. Ports are never reused.
type PortAllocator struct {
	mu   sync.Mutex
	next int
}

func NewPortAllocator(start int) *PortAllocator {
	return &PortAllocator{next: start}
}

// Allocate returns the next port, strictly greater than every earlier one
func (a *PortAllocator) Allocate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	port := a.next
	a.next++
	return port
}
