package identity

import "sync"

// Emitter fans credential events out to subscribers in emission order.
// Providers embed it to implement Subscribe.
type Emitter struct {
	// emitMu serializes delivery so every subscriber sees events in the same order.
	emitMu sync.Mutex

	mu      sync.Mutex
	current *Credential
	nextID  int
	subs    map[int]func(*Credential)
}

// Subscribe implements Provider.Subscribe.
func (e *Emitter) Subscribe(fn func(*Credential)) func() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.subs == nil {
		e.subs = make(map[int]func(*Credential))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	current := e.current.Clone()
	e.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Emit records c as the current credential and delivers it to every subscriber.
func (e *Emitter) Emit(c *Credential) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	e.current = c.Clone()
	subs := make([]func(*Credential), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(c.Clone())
	}
}

// Current returns the last emitted credential.
func (e *Emitter) Current() *Credential {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Subscribers returns the number of active subscriptions.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
