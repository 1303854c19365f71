package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/extensions/tn_attestation"
	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/extensions/tn_resolver"
	"github.com/trufnetwork/attestation-registry/extensions/tn_schema"
	"github.com/trufnetwork/attestation-registry/internal/api"
	"github.com/trufnetwork/attestation-registry/internal/config"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/storage"
	"github.com/trufnetwork/attestation-registry/internal/types"
	"github.com/trufnetwork/attestation-registry/internal/units"
)

// StateStore persists committed state. *storage.Store implements it.
type StateStore interface {
	Apply(ctx context.Context, st storage.State) error
	Load(ctx context.Context) (*storage.State, error)
}

// NodeOption configures a Node.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	store     StateStore
	logger    *zap.SugaredLogger
	chainOpts []host.Option
	resolvers []tn_resolver.Resolver
}

// WithStore persists every commit to store and restores from it on start.
func WithStore(store StateStore) NodeOption {
	return func(o *nodeOptions) { o.store = store }
}

// WithNodeLogger sets the logger shared by every component.
func WithNodeLogger(logger *zap.SugaredLogger) NodeOption {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithChainOptions passes options through to the host chain.
func WithChainOptions(opts ...host.Option) NodeOption {
	return func(o *nodeOptions) { o.chainOpts = append(o.chainOpts, opts...) }
}

// WithResolvers deploys resolvers that cannot be described in the config,
// next to the configured ones.
func WithResolvers(rs ...tn_resolver.Resolver) NodeOption {
	return func(o *nodeOptions) { o.resolvers = append(o.resolvers, rs...) }
}

var _ api.Backend = (*Node)(nil)

// Node wires the host chain, the registry components and persistence. It
// implements api.Backend.
type Node struct {
	chain     *host.Chain
	registry  *tn_schema.Registry
	resolvers *tn_resolver.Directory
	verifier  *tn_eip712.Verifier
	ledger    *tn_attestation.Ledger
	store     StateStore
	logger    *zap.SugaredLogger
}

// NewNode builds a node from cfg. With a store, persisted state is loaded
// first; genesis balances are only credited to an empty store.
func NewNode(ctx context.Context, cfg config.Config, opts ...NodeOption) (*Node, error) {
	o := &nodeOptions{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger

	verifier, err := tn_eip712.NewVerifier(tn_eip712.Domain{
		Name:              cfg.DomainName,
		Version:           cfg.DomainVersion,
		ChainID:           big.NewInt(cfg.ChainID),
		VerifyingContract: cfg.Ledger(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create verifier")
	}

	resolvers := append(deployResolvers(cfg.Resolvers), o.resolvers...)
	var incentive *tn_resolver.PayingIncentive
	if cfg.Incentive.Address != "" {
		amount, err := units.ParseEther(cfg.Incentive.Amount)
		if err != nil {
			return nil, errors.Wrap(err, "incentive amount")
		}
		incentive = tn_resolver.NewPayingIncentive(common.HexToAddress(cfg.Incentive.Address), amount, logger)
		resolvers = append(resolvers, incentive)
	}
	directory, err := tn_resolver.NewDirectory(resolvers...)
	if err != nil {
		return nil, errors.Wrap(err, "deploy resolvers")
	}

	registry := tn_schema.NewRegistry(cfg.Registry(), logger)
	ledger, err := tn_attestation.NewLedger(cfg.Ledger(), registry, directory, verifier, tn_attestation.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "create ledger")
	}

	n := &Node{
		chain:     host.NewChain(append([]host.Option{host.WithLogger(logger)}, o.chainOpts...)...),
		registry:  registry,
		resolvers: directory,
		verifier:  verifier,
		ledger:    ledger,
		store:     o.store,
		logger:    logger.Named("node"),
	}

	genesis, err := cfg.GenesisBalances()
	if err != nil {
		return nil, err
	}
	if incentive != nil && cfg.Incentive.Fund != "" {
		fund, err := units.ParseEther(cfg.Incentive.Fund)
		if err != nil {
			return nil, errors.Wrap(err, "incentive fund")
		}
		genesis[incentive.Address()] = new(big.Int).Add(types.ValueOf(genesis[incentive.Address()]), fund)
	}

	if err := n.init(ctx, genesis); err != nil {
		return nil, err
	}
	if n.store != nil {
		n.chain.Subscribe(n.persist)
	}
	return n, nil
}

// init restores persisted state or, on a fresh store, credits genesis.
func (n *Node) init(ctx context.Context, genesis map[common.Address]*big.Int) error {
	var st *storage.State
	if n.store != nil {
		var err error
		if st, err = n.store.Load(ctx); err != nil {
			return errors.Wrap(err, "load state")
		}
	}

	if st == nil || (st.Height == 0 && len(st.Balances) == 0) {
		for addr, amount := range genesis {
			n.chain.Fund(addr, amount)
		}
		if n.store != nil && len(genesis) > 0 {
			if err := n.store.Apply(ctx, storage.State{Balances: genesis}); err != nil {
				return errors.Wrap(err, "persist genesis")
			}
		}
		n.logger.Infow("genesis applied", "accounts", len(genesis))
		return nil
	}

	// Schemas first: attestations are checked against them.
	for _, rec := range st.Schemas {
		if err := n.registry.Restore(rec); err != nil {
			return errors.Wrap(err, "restore schema")
		}
	}
	for _, att := range st.Attestations {
		if err := n.ledger.Restore(att); err != nil {
			return errors.Wrap(err, "restore attestation")
		}
	}
	for account, nonce := range st.Nonces {
		n.verifier.Restore(account, nonce)
	}
	n.chain.Restore(st.Height+1, st.Balances)

	n.logger.Infow("state restored",
		"height", st.Height,
		"schemas", len(st.Schemas),
		"attestations", len(st.Attestations),
	)
	return nil
}

// persist writes the changes of one receipt. It runs under the chain lock, so
// reads of the components see exactly the committed state.
func (n *Node) persist(ctx context.Context, r host.Receipt) {
	st := storage.State{
		Height:   r.Height,
		Nonces:   make(map[common.Address]uint64),
		Balances: r.Balances,
	}
	for _, ev := range r.Events {
		switch e := ev.(type) {
		case tn_schema.Registered:
			st.Schemas = append(st.Schemas, n.registry.GetSchema(e.UID))
		case tn_attestation.Attested:
			st.Attestations = append(st.Attestations, n.ledger.GetAttestation(e.UID))
		case tn_attestation.Revoked:
			st.Attestations = append(st.Attestations, n.ledger.GetAttestation(e.UID))
		case tn_eip712.NonceIncreased:
			st.Nonces[e.Account] = n.verifier.GetNonce(e.Account)
		}
	}
	st.Attestations = lo.UniqBy(st.Attestations, func(a types.Attestation) common.Hash { return a.UID })

	// The caller may go away once its transaction committed.
	if err := n.store.Apply(context.WithoutCancel(ctx), st); err != nil {
		n.logger.Errorw("persist commit", "tx", r.TxID, "height", r.Height, "error", err)
	}
}

// Chain returns the host chain.
func (n *Node) Chain() *host.Chain { return n.chain }

// Ledger returns the attestation ledger.
func (n *Node) Ledger() *tn_attestation.Ledger { return n.ledger }

// Registry returns the schema registry.
func (n *Node) Registry() *tn_schema.Registry { return n.registry }

func (n *Node) RegisterSchema(ctx context.Context, from common.Address, schema string, resolver common.Address, revocable bool) (common.Hash, host.Receipt, error) {
	var uid common.Hash
	receipt, err := n.chain.Execute(ctx, from, n.registry.Address(), nil, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uid, err = n.registry.Register(tx, msg, schema, resolver, revocable)
		return err
	})
	return uid, receipt, err
}

// callLedger sends value to the ledger and runs fn as one transaction.
func (n *Node) callLedger(ctx context.Context, from common.Address, value *big.Int, fn func(tx *host.Tx, msg host.Msg) error) (host.Receipt, error) {
	return n.chain.Execute(ctx, from, n.ledger.Address(), value, fn)
}

func (n *Node) Attest(ctx context.Context, from common.Address, value *big.Int, req types.AttestationRequest) (common.Hash, host.Receipt, error) {
	var uid common.Hash
	receipt, err := n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uid, err = n.ledger.Attest(tx, msg, req)
		return err
	})
	return uid, receipt, err
}

func (n *Node) MultiAttest(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiAttestationRequest) ([]common.Hash, host.Receipt, error) {
	var uids []common.Hash
	receipt, err := n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uids, err = n.ledger.MultiAttest(tx, msg, reqs)
		return err
	})
	return uids, receipt, err
}

func (n *Node) AttestByDelegation(ctx context.Context, from common.Address, value *big.Int, req types.DelegatedAttestationRequest) (common.Hash, host.Receipt, error) {
	var uid common.Hash
	receipt, err := n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uid, err = n.ledger.AttestByDelegation(tx, msg, req)
		return err
	})
	return uid, receipt, err
}

func (n *Node) MultiAttestByDelegation(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiDelegatedAttestationRequest) ([]common.Hash, host.Receipt, error) {
	var uids []common.Hash
	receipt, err := n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uids, err = n.ledger.MultiAttestByDelegation(tx, msg, reqs)
		return err
	})
	return uids, receipt, err
}

func (n *Node) Revoke(ctx context.Context, from common.Address, value *big.Int, req types.RevocationRequest) (host.Receipt, error) {
	return n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		return n.ledger.Revoke(tx, msg, req)
	})
}

func (n *Node) MultiRevoke(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiRevocationRequest) (host.Receipt, error) {
	return n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		return n.ledger.MultiRevoke(tx, msg, reqs)
	})
}

func (n *Node) RevokeByDelegation(ctx context.Context, from common.Address, value *big.Int, req types.DelegatedRevocationRequest) (host.Receipt, error) {
	return n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		return n.ledger.RevokeByDelegation(tx, msg, req)
	})
}

func (n *Node) MultiRevokeByDelegation(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiDelegatedRevocationRequest) (host.Receipt, error) {
	return n.callLedger(ctx, from, value, func(tx *host.Tx, msg host.Msg) error {
		return n.ledger.MultiRevokeByDelegation(tx, msg, reqs)
	})
}

// IncreaseNonce invalidates every signature from `from` below newNonce.
func (n *Node) IncreaseNonce(ctx context.Context, from common.Address, newNonce uint64) (host.Receipt, error) {
	return n.callLedger(ctx, from, nil, func(tx *host.Tx, msg host.Msg) error {
		return n.verifier.IncreaseNonce(tx, msg.Sender, newNonce)
	})
}

// Reads go through View so they never race a transaction.

func (n *Node) GetSchema(uid common.Hash) types.SchemaRecord {
	var rec types.SchemaRecord
	_ = n.chain.View(func(*host.Tx) error {
		rec = n.registry.GetSchema(uid)
		return nil
	})
	return rec
}

func (n *Node) GetAttestation(uid common.Hash) types.Attestation {
	var att types.Attestation
	_ = n.chain.View(func(*host.Tx) error {
		att = n.ledger.GetAttestation(uid)
		return nil
	})
	return att
}

func (n *Node) GetNonce(account common.Address) uint64 {
	var nonce uint64
	_ = n.chain.View(func(*host.Tx) error {
		nonce = n.verifier.GetNonce(account)
		return nil
	})
	return nonce
}

func (n *Node) Balance(account common.Address) *big.Int {
	return n.chain.Balance(account)
}

func (n *Node) Domain() (tn_eip712.Domain, common.Hash) {
	return n.verifier.Domain(), n.verifier.DomainSeparator()
}

// deployResolvers builds the resolvers listed in the config. The config is
// assumed valid.
func deployResolvers(cfgs []config.ResolverConfig) []tn_resolver.Resolver {
	return lo.Map(cfgs, func(rc config.ResolverConfig, _ int) tn_resolver.Resolver {
		addr := common.HexToAddress(rc.Address)
		if rc.Kind == config.ResolverRecipient {
			return tn_resolver.NewRecipient(addr, common.HexToAddress(rc.Recipient))
		}
		return tn_resolver.NewNoOp(addr)
	})
}
