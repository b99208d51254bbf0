package exchange

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPair = errors.New("exchange: unknown trading pair")
	ErrPairExists  = errors.New("exchange: trading pair already registered")
	ErrOffGrid     = errors.New("exchange: value not a multiple of tick/lot size")
	ErrNotPositive = errors.New("exchange: value must be positive")
)

// AssetSpec declares an asset and its minor unit: balances are stored as
// integer multiples of 10^-Decimals of the asset.
type AssetSpec struct {
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// PairSpec describes one trading pair: its assets and the external decimal
// grid. Prices travel through the core as integer multiples of TickSize in
// Quote, quantities as integer multiples of LotSize in Base. The two unit
// factors are derived when the pair is registered and scale lots and ticks
// into asset minor units for the ledger.
type PairSpec struct {
	Symbol   string          `yaml:"symbol"`
	Base     string          `yaml:"base"`
	Quote    string          `yaml:"quote"`
	TickSize decimal.Decimal `yaml:"tickSize"`
	LotSize  decimal.Decimal `yaml:"lotSize"`
	Enabled  bool            `yaml:"enabled"`

	BaseUnitsPerLot      int64 `yaml:"-"`
	QuoteUnitsPerTickLot int64 `yaml:"-"`
}

func (p PairSpec) validate() error {
	if p.Symbol == "" || p.Base == "" || p.Quote == "" {
		return fmt.Errorf("pair %q: symbol, base and quote are required", p.Symbol)
	}
	if p.Base == p.Quote {
		return fmt.Errorf("pair %q: base and quote must differ", p.Symbol)
	}
	if !p.TickSize.IsPositive() || !p.LotSize.IsPositive() {
		return fmt.Errorf("pair %q: tick and lot size must be positive", p.Symbol)
	}
	return nil
}

// Registry is the asset-registry collaborator: asset and trading pair
// definitions plus decimal<->integer grid conversion. Populated at startup,
// mutated only by the gateway's admin operations.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]AssetSpec
	pairs  map[string]PairSpec
}

func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]AssetSpec),
		pairs:  make(map[string]PairSpec),
	}
}

func (r *Registry) AddAsset(spec AssetSpec) error {
	if spec.Symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if spec.Decimals < 0 || spec.Decimals > 18 {
		return fmt.Errorf("asset %q: decimals out of range", spec.Symbol)
	}
	r.mu.Lock()
	r.assets[spec.Symbol] = spec
	r.mu.Unlock()
	return nil
}

func (r *Registry) Asset(symbol string) (AssetSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[symbol]
	return a, ok
}

func (r *Registry) Add(spec PairSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[spec.Symbol]; ok {
		return ErrPairExists
	}
	base, ok := r.assets[spec.Base]
	if !ok {
		return fmt.Errorf("pair %q: unknown base asset %q", spec.Symbol, spec.Base)
	}
	quote, ok := r.assets[spec.Quote]
	if !ok {
		return fmt.Errorf("pair %q: unknown quote asset %q", spec.Symbol, spec.Quote)
	}
	// One lot must be a whole number of base minor units, and one
	// tick-by-lot a whole number of quote minor units; otherwise fills
	// could not settle exactly.
	bu, err := toUnits(spec.LotSize, base.Decimals)
	if err != nil {
		return fmt.Errorf("pair %q: lot size does not align with %s minor unit", spec.Symbol, spec.Base)
	}
	qu, err := toUnits(spec.TickSize.Mul(spec.LotSize), quote.Decimals)
	if err != nil {
		return fmt.Errorf("pair %q: tick size does not align with %s minor unit", spec.Symbol, spec.Quote)
	}
	spec.BaseUnitsPerLot = bu
	spec.QuoteUnitsPerTickLot = qu
	r.pairs[spec.Symbol] = spec
	return nil
}

func (r *Registry) Remove(symbol string) {
	r.mu.Lock()
	delete(r.pairs, symbol)
	r.mu.Unlock()
}

func (r *Registry) Get(symbol string) (PairSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.pairs[symbol]
	return spec, ok
}

func (r *Registry) List() []PairSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PairSpec, 0, len(r.pairs))
	for _, spec := range r.pairs {
		out = append(out, spec)
	}
	return out
}

// PriceToTicks converts a decimal price to ticks, rejecting off-grid values.
func (r *Registry) PriceToTicks(symbol string, price decimal.Decimal) (int64, error) {
	spec, ok := r.Get(symbol)
	if !ok {
		return 0, ErrUnknownPair
	}
	return toGrid(price, spec.TickSize)
}

// QtyToLots converts a decimal quantity to lots, rejecting off-grid values.
func (r *Registry) QtyToLots(symbol string, qty decimal.Decimal) (int64, error) {
	spec, ok := r.Get(symbol)
	if !ok {
		return 0, ErrUnknownPair
	}
	return toGrid(qty, spec.LotSize)
}

// TicksToPrice renders an internal tick count as a decimal price.
func (r *Registry) TicksToPrice(symbol string, ticks int64) decimal.Decimal {
	spec, ok := r.Get(symbol)
	if !ok {
		return decimal.Zero
	}
	return spec.TickSize.Mul(decimal.NewFromInt(ticks))
}

// LotsToQty renders an internal lot count as a decimal quantity.
func (r *Registry) LotsToQty(symbol string, lots int64) decimal.Decimal {
	spec, ok := r.Get(symbol)
	if !ok {
		return decimal.Zero
	}
	return spec.LotSize.Mul(decimal.NewFromInt(lots))
}

// AmountToUnits converts a decimal asset amount into minor units.
func (r *Registry) AmountToUnits(asset string, amount decimal.Decimal) (int64, error) {
	spec, ok := r.Asset(asset)
	if !ok {
		return 0, fmt.Errorf("exchange: unknown asset %q", asset)
	}
	if !amount.IsPositive() {
		return 0, ErrNotPositive
	}
	return toUnits(amount, spec.Decimals)
}

// UnitsToAmount renders minor units as a decimal asset amount.
func (r *Registry) UnitsToAmount(asset string, units int64) decimal.Decimal {
	spec, ok := r.Asset(asset)
	if !ok {
		return decimal.Zero
	}
	return decimal.New(units, -spec.Decimals)
}

func toUnits(v decimal.Decimal, decimals int32) (int64, error) {
	shifted := v.Shift(decimals)
	if !shifted.IsInteger() || !shifted.IsPositive() {
		return 0, ErrOffGrid
	}
	if !shifted.BigInt().IsInt64() {
		return 0, ErrOffGrid
	}
	return shifted.BigInt().Int64(), nil
}

func toGrid(v, step decimal.Decimal) (int64, error) {
	if !v.IsPositive() {
		return 0, ErrNotPositive
	}
	if !v.Mod(step).IsZero() {
		return 0, ErrOffGrid
	}
	q := v.Div(step).Round(0)
	if !q.BigInt().IsInt64() {
		return 0, ErrOffGrid
	}
	return q.BigInt().Int64(), nil
}
