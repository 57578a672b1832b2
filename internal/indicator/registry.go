package indicator

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// DefaultIndicators are the columns every evaluation ensures.
var DefaultIndicators = []types.IndicatorType{
	types.IndicatorEMA20,
	types.IndicatorEMA50,
	types.IndicatorEMA200,
	types.IndicatorRSI,
	types.IndicatorMACD,
	types.IndicatorTRIX,
	types.IndicatorHigh20,
	types.IndicatorLow20,
}

// IndicatorRegistry manages all available indicators.
type IndicatorRegistry interface {
	RegisterIndicator(indicator Indicator) error
	GetIndicator(name types.IndicatorType) (Indicator, error)
	ListIndicators() []types.IndicatorType
	RemoveIndicator(name types.IndicatorType) error
	// Ensure computes the named indicators missing from the frame. Unmet
	// warm-up leaves all-NaN columns so callers decide on the last row.
	Ensure(f *Frame, names ...types.IndicatorType) error
}

// IndicatorRegistryV1 manages all available indicators.
type IndicatorRegistryV1 struct {
	indicators map[types.IndicatorType]Indicator
	mu         sync.RWMutex
}

// NewIndicatorRegistry creates an empty indicator registry.
func NewIndicatorRegistry() IndicatorRegistry {
	return &IndicatorRegistryV1{
		indicators: make(map[types.IndicatorType]Indicator),
	}
}

// NewDefaultRegistry returns a registry holding the standard column set.
func NewDefaultRegistry() IndicatorRegistry {
	r := NewIndicatorRegistry()

	for _, ind := range []Indicator{
		NewEMA(types.IndicatorEMA20, 20),
		NewEMA(types.IndicatorEMA50, 50),
		NewEMA(types.IndicatorEMA200, 200),
		NewRSI(14),
		NewMACD(12, 26, 9),
		NewTRIX(15),
		NewRollingHigh(types.IndicatorHigh20, 20),
		NewRollingLow(types.IndicatorLow20, 20),
	} {
		// names above are distinct
		_ = r.RegisterIndicator(ind)
	}

	return r
}

// RegisterIndicator adds an indicator to the registry.
func (r *IndicatorRegistryV1) RegisterIndicator(indicator Indicator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := indicator.Name()
	if _, exists := r.indicators[name]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator %s already registered", name)
	}

	r.indicators[name] = indicator

	return nil
}

// GetIndicator retrieves an indicator by name.
func (r *IndicatorRegistryV1) GetIndicator(name types.IndicatorType) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indicator, exists := r.indicators[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %s not found", name)
	}

	return indicator, nil
}

// ListIndicators returns the registered names in sorted order.
func (r *IndicatorRegistryV1) ListIndicators() []types.IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.IndicatorType, 0, len(r.indicators))
	for name := range r.indicators {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// RemoveIndicator removes an indicator from the registry.
func (r *IndicatorRegistryV1) RemoveIndicator(name types.IndicatorType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indicators[name]; !exists {
		return errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %s not found", name)
	}

	delete(r.indicators, name)

	return nil
}

// Ensure implements IndicatorRegistry.
func (r *IndicatorRegistryV1) Ensure(f *Frame, names ...types.IndicatorType) error {
	for _, name := range names {
		ind, err := r.GetIndicator(name)
		if err != nil {
			return err
		}

		if f.Has(ind.Columns()...) {
			continue
		}

		err = ind.Compute(f)
		if errors.IsInsufficientDataError(err) {
			for _, col := range ind.Columns() {
				f.Set(col, nanSeries(f.Len()))
			}

			continue
		}

		if err != nil {
			return errors.Wrapf(errors.ErrCodeIndicatorCalculation, err, "compute %s for %s", name, f.Symbol)
		}
	}

	return nil
}
