package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

// DefaultOrder is the priority in which detectors run for a page.
var DefaultOrder = []string{"sensitive", "averto", "judgment"}

// Detector evaluates one page. A nil verdict means no signal.
type Detector interface {
	Name() string
	Evaluate(ctx context.Context, page *domain.PageSnapshot) (*domain.Verdict, error)
}

// Registry keeps a mapping from detector names to their implementations.
type Registry struct {
	detectors map[string]Detector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: map[string]Detector{}}
}

// Register adds or replaces a detector implementation.
func (r *Registry) Register(detector Detector) {
	if detector == nil {
		return
	}
	if r.detectors == nil {
		r.detectors = map[string]Detector{}
	}
	r.detectors[detector.Name()] = detector
}

// Resolve returns a detector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Detector, error) {
	if detector, ok := r.detectors[name]; ok {
		return detector, nil
	}
	return nil, fmt.Errorf("detector %s is not registered", name)
}

// Chain resolves names into an ordered list. Disabled detectors can be left
// out of the registry and listed in optional; they are then skipped.
func (r *Registry) Chain(order []string, optional ...string) ([]Detector, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	skippable := map[string]bool{}
	for _, name := range optional {
		skippable[name] = true
	}

	chain := make([]Detector, 0, len(order))
	seen := map[string]bool{}
	for _, raw := range order {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		detector, err := r.Resolve(name)
		if err != nil {
			if skippable[name] {
				continue
			}
			return nil, err
		}
		chain = append(chain, detector)
	}
	return chain, nil
}
