package capture

import "sync"

// ConfigSession is an in-process Session. It tracks nesting depth and runs
// commit hooks once the outermost scope closes.
type ConfigSession struct {
	mu      sync.Mutex
	depth   int
	commits int
	hooks   []func()
}

// NewSession creates an idle configuration session
func NewSession() *ConfigSession {
	return &ConfigSession{}
}

// BeginConfiguration opens (or nests) a configuration scope
func (s *ConfigSession) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
}

// CommitConfiguration closes a scope. Unbalanced commits are ignored.
func (s *ConfigSession) CommitConfiguration() {
	s.mu.Lock()
	if s.depth == 0 {
		s.mu.Unlock()
		return
	}
	s.depth--
	if s.depth > 0 {
		s.mu.Unlock()
		return
	}
	s.commits++
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// OnCommit registers a hook run after each outermost commit
func (s *ConfigSession) OnCommit(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// InConfiguration reports whether a scope is open
func (s *ConfigSession) InConfiguration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth > 0
}

// Commits returns how many outermost scopes have been committed
func (s *ConfigSession) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
