// Package ocr is the boundary to text-detection engines. An engine returns
// every text fragment it finds in a screenshot together with its box.
package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Point is an image coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one text fragment. Quad is clockwise from the top-left corner:
// top-left, top-right, bottom-right, bottom-left.
type Detection struct {
	Quad       [4]Point `json:"quad"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
}

// Left is the x of the top-left corner.
func (d Detection) Left() float64 { return d.Quad[0].X }

// CenterY is the middle of the left edge.
func (d Detection) CenterY() float64 { return (d.Quad[0].Y + d.Quad[3].Y) / 2 }

// Rect builds an axis-aligned quad.
func Rect(x0, y0, x1, y1 float64) [4]Point {
	return [4]Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// Image is one screenshot handed to an engine.
type Image struct {
	ID   string
	Data []byte
	MIME string
}

type Engine interface {
	Name() string
	Detect(ctx context.Context, img Image) ([]Detection, error)
}

// Manager picks the engine per chat, falling back to a default.
type Manager struct {
	def     Engine
	mu      sync.RWMutex
	byName  map[string]Engine
	perChat map[int64]string
}

func NewManager(defaultEngine Engine, others ...Engine) *Manager {
	m := &Manager{
		def:     defaultEngine,
		byName:  make(map[string]Engine),
		perChat: make(map[int64]string),
	}
	m.Register(defaultEngine)
	for _, e := range others {
		m.Register(e)
	}
	return m
}

func (m *Manager) Register(e Engine) {
	if e == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[e.Name()] = e
}

// Names lists registered engines, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byName))
	for n := range m.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Default() Engine { return m.def }

// Lookup finds an engine by name.
func (m *Manager) Lookup(name string) (Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

func (m *Manager) Get(chatID int64) Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.perChat[chatID]; ok {
		if e, ok := m.byName[n]; ok {
			return e
		}
	}
	return m.def
}

// Set selects a registered engine for chatID.
func (m *Manager) Set(chatID int64, name string) error {
	e, ok := m.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown ocr engine %q (have %s)", name, strings.Join(m.Names(), ", "))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perChat[chatID] = e.Name()
	return nil
}
