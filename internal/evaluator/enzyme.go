package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Component inspection bundles fetched when a frame asks for Enzyme.
const (
	EnzymeAsset        = "enzyme.js"
	EnzymeAdapterAsset = "enzyme-adapter-react-16.js"
)

// AssetLoader fetches static scripts served next to the evaluators.
type AssetLoader interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

type enzymeBundle struct {
	enzyme  string
	adapter string
}

// fetch schedules both downloads on g.
func (b *enzymeBundle) fetch(ctx context.Context, g *errgroup.Group, assets AssetLoader) {
	for name, dst := range map[string]*string{
		EnzymeAsset:        &b.enzyme,
		EnzymeAdapterAsset: &b.adapter,
	} {
		g.Go(func() error {
			body, err := assets.Fetch(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			*dst = string(body)
			return nil
		})
	}
}

// install runs both bundles and configures Enzyme with the React 16 adapter.
// The bundles are expected to define Enzyme and EnzymeAdapterReact16.
func (b *enzymeBundle) install(exec *executor) error {
	if _, err := exec.script(EnzymeAsset, b.enzyme); err != nil {
		return fmt.Errorf("failed to run %s: %w", EnzymeAsset, err)
	}
	if _, err := exec.script(EnzymeAdapterAsset, b.adapter); err != nil {
		return fmt.Errorf("failed to run %s: %w", EnzymeAdapterAsset, err)
	}
	if _, err := exec.script("enzyme-configure.js", "var Adapter16 = EnzymeAdapterReact16;\nEnzyme.configure({ adapter: new Adapter16() });"); err != nil {
		return fmt.Errorf("failed to configure enzyme: %w", err)
	}
	return nil
}
