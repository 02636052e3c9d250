// Package catalog is the in-memory list of every known target, tracked or not.
package catalog

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/hamed0406/serverwatch/internal/domain"
)

var (
	ErrExists   = errors.New("target already exists")
	ErrNotFound = errors.New("target not found")
	ErrInvalid  = errors.New("invalid target")
)

type Catalog struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
}

func New(targets ...domain.Target) *Catalog {
	c := &Catalog{targets: make(map[domain.TargetID]domain.Target, len(targets))}
	for _, t := range targets {
		c.targets[t.ID] = t
	}
	return c
}

// Replace swaps the whole catalog, used when restoring from storage.
func (c *Catalog) Replace(targets []domain.Target) {
	m := make(map[domain.TargetID]domain.Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	c.mu.Lock()
	c.targets = m
	c.mu.Unlock()
}

func Validate(t domain.Target) error {
	switch {
	case strings.TrimSpace(string(t.ID)) == "":
		return errors.Join(ErrInvalid, errors.New("empty name"))
	case strings.TrimSpace(t.Address.Host) == "":
		return errors.Join(ErrInvalid, errors.New("empty host"))
	case t.Address.Port < 1 || t.Address.Port > 65535:
		return errors.Join(ErrInvalid, errors.New("port out of range"))
	}
	return nil
}

// Add registers a new target. Names are unique and compared case-sensitively.
func (c *Catalog) Add(t domain.Target) error {
	if err := Validate(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.targets[t.ID]; ok {
		return ErrExists
	}
	c.targets[t.ID] = t
	return nil
}

func (c *Catalog) Remove(id domain.TargetID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.targets[id]; !ok {
		return ErrNotFound
	}
	delete(c.targets, id)
	return nil
}

func (c *Catalog) Get(id domain.TargetID) (domain.Target, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.targets[id]
	return t, ok
}

// SetTracked flips GloballyTracked; unknown IDs are ignored.
func (c *Catalog) SetTracked(id domain.TargetID, tracked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.targets[id]; ok {
		t.GloballyTracked = tracked
		c.targets[id] = t
	}
}

func (c *Catalog) IDs() []domain.TargetID {
	c.mu.RLock()
	out := make([]domain.TargetID, 0, len(c.targets))
	for id := range c.targets {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every target sorted by ID.
func (c *Catalog) All() []domain.Target {
	c.mu.RLock()
	out := make([]domain.Target, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.targets)
}
