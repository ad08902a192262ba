package auth

import "sync"

// Flows keeps in-flight authentication attempts by flow id so the HTTP
// layer can drive the state machine across requests. Flows are transient
// and never persisted.
type Flows struct {
	mu       sync.Mutex
	accounts AccountStore
	sender   CodeSender
	byID     map[string]*Flow
}

func NewFlows(accounts AccountStore, sender CodeSender) *Flows {
	return &Flows{
		accounts: accounts,
		sender:   sender,
		byID:     make(map[string]*Flow),
	}
}

func (fs *Flows) Create() *Flow {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f := NewFlow(fs.accounts, fs.sender)
	fs.byID[f.ID] = f
	return f
}

func (fs *Flows) Get(id string) (*Flow, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.byID[id]
	return f, ok
}

// Drop removes a completed or abandoned flow.
func (fs *Flows) Drop(id string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.byID, id)
}
