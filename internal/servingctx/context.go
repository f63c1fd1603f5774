package servingctx

import (
	"sync"

	"github.com/mrzor/cellwatch/internal/identity"
)

// CellContext is the currently serving cell.
type CellContext struct {
	mu   sync.RWMutex
	cell identity.Cell
}

// NewCellContext creates an empty cell context.
func NewCellContext() *CellContext {
	return &CellContext{}
}

// Snapshot returns the current cell (query).
func (c *CellContext) Snapshot() identity.Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cell
}

// Replace stores cell and reports whether it differs from the previous value (command).
func (c *CellContext) Replace(cell identity.Cell) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.cell != cell
	c.cell = cell
	return changed
}

// Apply derives the next cell from the current one under the write lock and stores it (command).
// It returns the stored cell and whether it changed.
func (c *CellContext) Apply(next func(prev identity.Cell) identity.Cell) (identity.Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated := next(c.cell)
	changed := updated != c.cell
	c.cell = updated
	return updated, changed
}

// MMEContext is the last known MME group and code.
type MMEContext struct {
	mu  sync.RWMutex
	mme identity.MME
}

// NewMMEContext creates an empty MME context.
func NewMMEContext() *MMEContext {
	return &MMEContext{}
}

// Snapshot returns the current MME info (query).
func (m *MMEContext) Snapshot() identity.MME {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mme
}

// Observe records non-empty group and code values (command).
// Empty arguments leave the stored field untouched.
func (m *MMEContext) Observe(group, code string) {
	if group == "" && code == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if group != "" {
		m.mme.Group = group
	}
	if code != "" {
		m.mme.Code = code
	}
}

// Contexts bundles the two shared contexts handed to every decoder.
type Contexts struct {
	Cell *CellContext
	MME  *MMEContext
}

// New creates a fresh pair of empty contexts.
func New() *Contexts {
	return &Contexts{
		Cell: NewCellContext(),
		MME:  NewMMEContext(),
	}
}
