// Package patches is the catalog of fixture replacements for a connector's
// network-facing operations.
//
// A Registry is built once per test session for one connector. Every entry
// starts Registered; activating it swaps the matching function on the
// connector's operation sets (or on a market's native operations) for one
// that answers from the fixture store. Activating again simply installs a
// fresh replacement. With patches disabled in the session config every
// activation is a no-op, so the same tests can run against a live backend.
package patches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/recomma/dexfixture/config"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/patch"
	"github.com/recomma/dexfixture/signature"
)

var (
	ErrUnknownPatch        = errors.New("patches: unknown patch")
	ErrMissingArgument     = errors.New("patches: missing argument")
	ErrUnrecognizedAddress = errors.New("cannot mock unrecognized address")
	ErrNotImplemented      = errors.New("not implemented")
)

type ID string

const (
	LoadTokens                     ID = "chain/loadTokens"
	GetKeypair                     ID = "chain/getKeypair"
	GetMarketsInformation          ID = "exchange/getMarketsInformation"
	LoadMarket                     ID = "exchange/market/load"
	LoadAsks                       ID = "exchange/market/loadAsks"
	LoadBids                       ID = "exchange/market/loadBids"
	AsksBidsForAllMarkets          ID = "exchange/market/asksBidsForAllMarkets"
	LoadOrdersForOwner             ID = "exchange/market/loadOrdersForOwner"
	FindOpenOrdersAccountsForOwner ID = "exchange/market/findOpenOrdersAccountsForOwner"
	GetTicker                      ID = "exchange/getTicker"
	LoadFills                      ID = "exchange/loadFills"
	PlaceOrders                    ID = "exchange/placeOrders"
	CancelOrdersAndSettleFunds     ID = "exchange/cancelOrdersAndSettleFunds"
	SettleFunds                    ID = "exchange/settleFunds"
	SettleSeveralFunds             ID = "exchange/settleSeveralFunds"
	FindForMarketAndOwner          ID = "exchange/market/openOrders/findForMarketAndOwner"
	SettleFundsForMarket           ID = "exchange/settleFundsForMarket"
)

type State int

const (
	Registered State = iota + 1
	Active
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Active:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Args carries the parameters of an activation.
type Args struct {
	Market     string
	StartIndex int
	OrderBooks map[string]*dex.OrderBook
	Candidates []dex.CandidateOrder

	hasStartIndex bool
}

type Arg func(*Args)

func WithMarket(name string) Arg {
	return func(a *Args) { a.Market = name }
}

func WithStartIndex(index int) Arg {
	return func(a *Args) {
		a.StartIndex = index
		a.hasStartIndex = true
	}
}

// WithOrderBooks supplies the resolved books, keyed by market name.
func WithOrderBooks(books map[string]*dex.OrderBook) Arg {
	return func(a *Args) { a.OrderBooks = books }
}

func WithCandidates(candidates []dex.CandidateOrder) Arg {
	return func(a *Args) { a.Candidates = candidates }
}

type activateFunc func(ctx context.Context, args Args) error

// Entry is one activatable replacement.
type Entry struct {
	id       ID
	registry *Registry
	activate activateFunc
	state    State
}

func (e *Entry) ID() ID { return e.id }

func (e *Entry) State() State {
	e.registry.mu.Lock()
	defer e.registry.mu.Unlock()
	return e.state
}

func (e *Entry) Activate(ctx context.Context, args ...Arg) error {
	return e.registry.activateEntry(ctx, e, args)
}

// Config scopes a registry.
type Config struct {
	Disabled      bool
	Markets       []string
	Wallet        config.Wallet
	SignatureSeed uint64

	// Journal records every replacement. A fresh one is used when nil.
	Journal *patch.Journal
	Logger  *slog.Logger
}

// ConfigFromSession resolves the wallet and seed of a session config.
func ConfigFromSession(s *config.Session) (Config, error) {
	wallet, err := s.Wallet.Resolve()
	if err != nil {
		return Config{}, fmt.Errorf("resolve wallet: %w", err)
	}
	return Config{
		Disabled:      s.DisablePatches,
		Markets:       append([]string(nil), s.Markets...),
		Wallet:        wallet,
		SignatureSeed: s.Seed(),
	}, nil
}

type Registry struct {
	conn    *dex.Connector
	store   *fixture.Store
	cfg     Config
	journal *patch.Journal
	sigs    *signature.Synthesizer
	session uuid.UUID
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[ID]*Entry
	tickers map[string]dex.Ticker
}

// New builds the registry of a session. All entries start Registered.
func New(conn *dex.Connector, store *fixture.Store, cfg Config) *Registry {
	journal := cfg.Journal
	if journal == nil {
		journal = patch.NewJournal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().WithGroup("patches")
	}
	session := uuid.New()

	r := &Registry{
		conn:    conn,
		store:   store,
		cfg:     cfg,
		journal: journal,
		sigs:    signature.New(cfg.SignatureSeed),
		session: session,
		logger:  logger.With(slog.String("session", session.String())),
		entries: make(map[ID]*Entry),
		tickers: make(map[string]dex.Ticker),
	}

	r.register(LoadTokens, r.loadTokens)
	r.register(GetKeypair, r.getKeypair)
	r.register(GetMarketsInformation, r.getMarketsInformation)
	r.register(LoadMarket, r.loadMarket)
	r.register(LoadAsks, r.loadAsks)
	r.register(LoadBids, r.loadBids)
	r.register(AsksBidsForAllMarkets, r.asksBidsForAllMarkets)
	r.register(LoadOrdersForOwner, r.loadOrdersForOwner)
	r.register(FindOpenOrdersAccountsForOwner, r.findOpenOrdersAccountsForOwner)
	r.register(GetTicker, r.getTicker)
	r.register(LoadFills, r.loadFills)
	r.register(PlaceOrders, r.placeOrders)
	r.register(CancelOrdersAndSettleFunds, r.cancelOrdersAndSettleFunds)
	r.register(SettleFunds, r.settleFunds)
	r.register(SettleSeveralFunds, r.settleSeveralFunds)
	r.register(FindForMarketAndOwner, r.findForMarketAndOwner)
	r.register(SettleFundsForMarket, r.settleFundsForMarket)

	return r
}

func (r *Registry) register(id ID, fn activateFunc) {
	r.entries[id] = &Entry{id: id, registry: r, activate: fn, state: Registered}
}

// Get returns the entry registered under id.
func (r *Registry) Get(id ID) (*Entry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPatch, id)
	}
	return entry, nil
}

// Activate is shorthand for Get(id) followed by Entry.Activate.
func (r *Registry) Activate(ctx context.Context, id ID, args ...Arg) error {
	entry, err := r.Get(id)
	if err != nil {
		return err
	}
	return entry.Activate(ctx, args...)
}

// IDs lists every registered id in lexical order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Journal holds every replacement applied by this registry. The registry
// never restores; the test lifecycle does.
func (r *Registry) Journal() *patch.Journal { return r.journal }

func (r *Registry) Session() uuid.UUID { return r.session }

func (r *Registry) Disabled() bool { return r.cfg.Disabled }

func (r *Registry) activateEntry(ctx context.Context, e *Entry, opts []Arg) error {
	logger := r.logger.With(slog.String("patch", string(e.id)))
	if r.cfg.Disabled {
		logger.Debug("patches disabled, activation skipped")
		return nil
	}

	var args Args
	for _, opt := range opts {
		opt(&args)
	}

	err := e.activate(rlog.ContextWithLogger(ctx, logger), args)

	var partial *BatchError
	applied := err == nil || (errors.As(err, &partial) && len(partial.Applied) > 0)
	if applied {
		r.mu.Lock()
		e.state = Active
		r.mu.Unlock()
	}

	if err != nil {
		logger.Warn("patch activation failed", slog.String("error", err.Error()))
		return fmt.Errorf("activate %s: %w", e.id, err)
	}
	logger.Debug("patch active", slog.Int("journal", r.journal.Len()))
	return nil
}

// MarketError is the failure of one market within a batch activation.
type MarketError struct {
	Market string
	Err    error
}

func (e *MarketError) Error() string { return e.Market + ": " + e.Err.Error() }

func (e *MarketError) Unwrap() error { return e.Err }

// BatchError reports the markets a batch activation could not patch. The
// markets in Applied stay patched; there is no rollback.
type BatchError struct {
	Applied []string
	Failed  []*MarketError
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%d of %d markets failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Applied), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f
	}
	return out
}

type batch struct {
	applied []string
	failed  []*MarketError
}

func (b *batch) record(market string, err error) {
	if err != nil {
		b.failed = append(b.failed, &MarketError{Market: market, Err: err})
		return
	}
	b.applied = append(b.applied, market)
}

func (b *batch) err() error {
	if len(b.failed) == 0 {
		return nil
	}
	return &BatchError{Applied: b.applied, Failed: b.failed}
}
