package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager is the unified tool manager (spec.md §4.5): a merged view
// over every registered Source, resolving name collisions according
// to a configurable policy and enforcing a per-call timeout.
type Manager struct {
	mu       sync.RWMutex
	sources  []Source
	policy   CollisionPolicy
	timeout  time.Duration
	resolved map[string]Tool
}

func NewManager(policy CollisionPolicy) *Manager {
	if policy == "" {
		policy = CollisionPreferMCP
	}
	return &Manager{policy: policy, timeout: DefaultExecuteTimeout, resolved: make(map[string]Tool)}
}

func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

func (m *Manager) RegisterSource(s Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sources {
		if existing.Name() == s.Name() {
			return fmt.Errorf("tools: source %q already registered", s.Name())
		}
	}
	m.sources = append(m.sources, s)
	return nil
}

// CollisionDetected is returned by DiscoverAll when the manager's
// policy is CollisionError and two sources registered the same tool
// name.
type CollisionDetected struct {
	ToolName string
}

func (e *CollisionDetected) Error() string {
	return fmt.Sprintf("tools: name collision on %q (policy=error)", e.ToolName)
}

// DiscoverAll calls DiscoverTools on every registered source and
// rebuilds the resolved name -> tool index.
func (m *Manager) DiscoverAll(ctx context.Context) error {
	m.mu.RLock()
	sources := append([]Source(nil), m.sources...)
	m.mu.RUnlock()

	var firstErr error
	for _, s := range sources {
		if err := s.DiscoverTools(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: discover from %s: %w", s.Name(), err)
		}
	}

	if err := m.rebuildIndex(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// rebuildIndex returns a *CollisionDetected if the manager's policy is
// CollisionError and a genuine name collision was found; m.resolved is
// still rebuilt in that case (first-registered wins), matching every
// other policy's behavior of always leaving the index usable.
func (m *Manager) rebuildIndex() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved := make(map[string]Tool)
	var collisionErr error
	for _, s := range m.sources {
		for _, info := range s.ListTools() {
			tool, _ := s.GetTool(info.Name)
			existing, collides := resolved[info.Name]
			if !collides {
				resolved[info.Name] = tool
				continue
			}
			if err := m.resolveCollision(resolved, info.Name, existing, tool, s); err != nil && collisionErr == nil {
				collisionErr = err
			}
		}
	}
	m.resolved = resolved
	return collisionErr
}

func (m *Manager) resolveCollision(resolved map[string]Tool, name string, existing, incoming Tool, incomingSource Source) error {
	switch m.policy {
	case CollisionFirstWins:
		// keep existing
	case CollisionPreferMCP:
		if incomingSource.Type() == "mcp" {
			resolved[name] = incoming
		}
	case CollisionPrefixInternal:
		if incomingSource.Type() == "internal" {
			resolved["internal:"+name] = incoming
		} else {
			resolved[name] = incoming
		}
	case CollisionError:
		return &CollisionDetected{ToolName: name}
	default:
		resolved[name] = incoming
	}
	return nil
}

// GetAllTools returns the merged, collision-resolved tool catalog
// every LLM call sees.
func (m *Manager) GetAllTools() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.resolved))
	for _, t := range m.resolved {
		out = append(out, t.Info())
	}
	return out
}

// GetToolsForProvider returns the same catalog as GetAllTools for every
// provider; the provider argument does not filter or reshape anything.
func (m *Manager) GetToolsForProvider(provider string) []Info {
	return m.GetAllTools()
}

// ExecuteTool runs a tool by name, bounding execution with the
// manager's configured timeout (default 60s, spec.md §4.5).
func (m *Manager) ExecuteTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	m.mu.RLock()
	tool, ok := m.resolved[name]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("tools: unknown tool %q", name)
	}
	return m.executeWithTimeout(ctx, tool, args)
}

// ExecuteToolWithoutLoading executes a tool the caller already holds
// a reference to, skipping the name lookup in the resolved catalog.
// The LLM tool-calling loop does not use it; it goes through ExecuteTool.
func (m *Manager) ExecuteToolWithoutLoading(ctx context.Context, tool Tool, args map[string]any) (Result, error) {
	return m.executeWithTimeout(ctx, tool, args)
}

func (m *Manager) executeWithTimeout(ctx context.Context, tool Tool, args map[string]any) (Result, error) {
	timeout := m.timeout
	if timeout <= 0 {
		timeout = DefaultExecuteTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(cctx, args)
	result.ExecutionTime = time.Since(start)
	result.ToolName = tool.Info().Name
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	return result, err
}
