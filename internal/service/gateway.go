package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/polygate/internal/clob"
	"github.com/GoPolymarket/polygate/internal/config"
	"github.com/GoPolymarket/polygate/internal/core/events"
	"github.com/GoPolymarket/polygate/internal/core/executor"
	"github.com/GoPolymarket/polygate/internal/core/noncemgr"
	"github.com/GoPolymarket/polygate/internal/core/registry"
	"github.com/GoPolymarket/polygate/internal/core/sequencer"
	"github.com/GoPolymarket/polygate/internal/core/tracker"
	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/manager"
	"github.com/GoPolymarket/polygate/internal/market"
	"github.com/GoPolymarket/polygate/internal/model"
	"github.com/GoPolymarket/polygate/internal/pkg/logger"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	polysigner "github.com/GoPolymarket/polygate/internal/signer"
	"github.com/GoPolymarket/polygate/internal/signercap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// GatewayService is the trading-facing surface: it builds and signs CLOB
// orders off-chain, then relays them on-chain to the exchange contract
// through this module's executor pipeline, replacing the original
// gateway's REST calls into the dropped Polymarket SDK.
type GatewayService struct {
	tm           *TenantManager
	risk         *RiskEngine
	config       *config.Config
	exchangeMgr  *manager.NonceManager // exchange (order) nonce cache only
	market       *market.MarketService
	userStream   *market.UserStream
	rpc          rpccap.RpcCap
	eip1271      *EIP1271Verifier
	fastSigner   *polysigner.Signer // off-chain EIP-712 order signer for the gateway-custodied path
	operatorSigner *signercap.Signer // on-chain gas-payer, relays every fillOrder/cancel call
	operator     *executor.QueuedExecutor
	encoder      clob.OrderEncoder
	exchangeAddr common.Address
	proxyFactory common.Address
	proxyInitCodeHash common.Hash
	chainID      int64
	panicMode    atomic.Bool
}

// NewGatewayService wires the executor pipeline (nonce manager, tracker,
// sequencer registry) to an operator account that pays gas for every
// on-chain relay, independent of whichever key signed a given order.
func NewGatewayService(cfg *config.Config, tm *TenantManager, risk *RiskEngine, marketSvc *market.MarketService, userStream *market.UserStream, rpc rpccap.RpcCap, sink events.Sink) (*GatewayService, error) {
	exchangeMgr, err := manager.NewNonceManager(cfg.Chain.RPCURL)
	if err != nil && cfg.Chain.RPCURL != "" {
		logger.Warn("failed to init exchange nonce cache", "error", err)
	}

	exchangeAddr := polysigner.ExchangeContractAddress
	if cfg.Chain.ExchangeAddress != "" {
		exchangeAddr = cfg.Chain.ExchangeAddress
	}
	if exchangeMgr != nil {
		exchangeMgr.SetExchangeAddress(common.HexToAddress(exchangeAddr))
	}

	svc := &GatewayService{
		tm:           tm,
		risk:         risk,
		config:       cfg,
		exchangeMgr:  exchangeMgr,
		market:       marketSvc,
		userStream:   userStream,
		rpc:          rpc,
		encoder:      clob.NewOrderEncoder(),
		exchangeAddr: common.HexToAddress(exchangeAddr),
		chainID:      cfg.Chain.ChainID,
	}
	if cfg.Chain.ProxyFactoryAddress != "" {
		svc.proxyFactory = common.HexToAddress(cfg.Chain.ProxyFactoryAddress)
	}
	if cfg.Chain.ProxyInitCodeHash != "" {
		svc.proxyInitCodeHash = common.HexToHash(cfg.Chain.ProxyInitCodeHash)
	}

	if cfg.Polymarket.PrivateKey != "" {
		pk := strings.TrimPrefix(cfg.Polymarket.PrivateKey, "0x")
		fastSigner, err := polysigner.NewSigner(pk, svc.chainID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize fast signer: %w", err)
		}
		svc.fastSigner = fastSigner

		operatorSigner, err := signercap.NewSigner(pk)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize operator signer: %w", err)
		}
		svc.operatorSigner = operatorSigner
		nonces := noncemgr.New(rpc)
		tr := tracker.New(rpc, sink, tracker.Options{})
		seqRegistry := registry.NewSequencerRegistry(sequencer.Options{Capacity: sequencer.DefaultCapacity})
		pending := registry.NewPendingRequestRegistry()
		svc.operator = executor.NewQueuedExecutor(nonces, rpc, operatorSigner, tr, sink, seqRegistry, pending)
	}

	return svc, nil
}

func (s *GatewayService) GetFills() []market.Fill {
	if s.userStream == nil {
		return nil
	}
	return s.userStream.GetFills()
}

func (s *GatewayService) GetOrderbook(tokenID string) *market.Orderbook {
	if s.market == nil {
		return nil
	}
	book := s.market.GetBook(tokenID)
	if book == nil {
		s.market.Subscribe([]string{tokenID})
		return nil
	}
	return book
}

// PlaceOrder signs (or verifies an externally-supplied signature for) a
// CLOB order, then relays a fillOrder call to the exchange contract
// through the operator's QueuedExecutor, returning once the call reaches
// the mempool.
func (s *GatewayService) PlaceOrder(ctx context.Context, tenant *model.Tenant, req model.OrderRequest) (common.Hash, error) {
	if s.panicMode.Load() {
		return common.Hash{}, fmt.Errorf("system in panic mode: all trading suspended")
	}
	if s.operator == nil {
		return common.Hash{}, fmt.Errorf("gateway has no operator key configured")
	}
	if req.Signature != "" && req.Signable == nil {
		return common.Hash{}, fmt.Errorf("signable order required when providing signature")
	}

	signable := req.Signable
	riskReq := req
	if signable != nil {
		if signable.Order == nil {
			return common.Hash{}, fmt.Errorf("signable order is required")
		}
		riskReq = requestFromOrder(signable)
	}

	if err := s.risk.CheckOrder(ctx, tenant, riskReq); err != nil {
		return common.Hash{}, err
	}

	useGatewaySigner := strings.TrimSpace(req.Signature) == ""
	if useGatewaySigner && s.fastSigner == nil {
		return common.Hash{}, fmt.Errorf("signature required or gateway private key not configured")
	}

	if signable == nil {
		var err error
		signable, err = s.buildSignable(req, useGatewaySigner)
		if err != nil {
			return common.Hash{}, err
		}
	} else if req.SignatureType != nil {
		signable.Order.SignatureType = clob.SignatureType(*req.SignatureType)
	}

	if err := s.checkMaxSlippage(tenant, riskReq); err != nil {
		return common.Hash{}, err
	}

	var signature string
	if useGatewaySigner {
		if s.exchangeMgr != nil {
			if exNonce, err := s.exchangeMgr.GetExchangeNonce(ctx, s.fastSigner.Address()); err == nil {
				signable.Order.Nonce = uint256.MustFromBig(exNonce)
			}
		}
		sig, err := s.fastSigner.SignOrder(signable.Order)
		if err != nil {
			return common.Hash{}, fmt.Errorf("signing failed: %w", err)
		}
		signature = sig
	} else {
		signerAddr := strings.TrimSpace(req.Signer)
		if signerAddr == "" {
			signerAddr = signable.Order.Signer.Hex()
		}
		if !tenantAllowsSigner(tenant, signerAddr) {
			return common.Hash{}, fmt.Errorf("signer not allowed for tenant")
		}
		sigType := req.SignatureType
		if sigType == nil {
			st := int(signable.Order.SignatureType)
			sigType = &st
		}
		if !signatureTypeSupported(sigType) && !tenant.Risk.AllowUnverifiedSignatures {
			return common.Hash{}, fmt.Errorf("signature type not supported for verification")
		}
		if clob.SignatureType(*sigType) == clob.SignatureGnosisSafe {
			if !tenant.Risk.AllowUnverifiedSignatures {
				if err := s.verifySafeSignature(ctx, signable.Order, req.Signature); err != nil {
					return common.Hash{}, err
				}
			}
		} else if signatureTypeSupported(sigType) {
			if err := verifyOrderSignature(signable.Order, req.Signature, signerAddr, s.chainID); err != nil {
				return common.Hash{}, fmt.Errorf("invalid signature")
			}
		}
		signature = req.Signature
	}

	apiKey, err := resolveAPIKey(tenant, req)
	if err != nil {
		return common.Hash{}, err
	}

	signed := &clob.SignedOrder{
		Order:     *signable.Order,
		Signature: signature,
		Owner:     apiKey.Key,
		OrderType: signable.OrderType,
		PostOnly:  signable.PostOnly,
	}

	hash, err := s.submit(ctx, tenant, &clob.Request{Kind: clob.RequestPlace, Order: signed})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "nonce") && s.exchangeMgr != nil {
			logger.Warn("detected nonce error placing order, triggering exchange nonce re-sync", "error", err)
			_, _ = s.exchangeMgr.SyncExchangeNonce(ctx, signed.Order.Maker)
		}
		return common.Hash{}, err
	}

	s.risk.PostOrderHook(ctx, tenant, riskReq)
	return hash, nil
}

// BuildTypedOrder constructs a SignableOrder from req without signing or
// submitting it, returning the EIP-712 typed data a caller's own wallet
// can sign out of band (e.g. a browser extension holding the L1 key).
func (s *GatewayService) BuildTypedOrder(ctx context.Context, tenant *model.Tenant, req model.OrderRequest) (*model.TypedOrderResponse, error) {
	useGatewaySigner := strings.TrimSpace(req.Signer) == "" && s.fastSigner != nil
	signable, err := s.buildSignable(req, useGatewaySigner)
	if err != nil {
		return nil, err
	}
	signerAddr := signable.Order.Signer
	typedData, err := buildTypedData(signable.Order, signerAddr, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build typed data: %w", err)
	}
	return &model.TypedOrderResponse{Signable: signable, TypedData: typedData}, nil
}

func (s *GatewayService) ActivatePanicMode(ctx context.Context, tenant *model.Tenant) error {
	s.panicMode.Store(true)
	_, err := s.CancelAllOrders(ctx, tenant)
	return err
}

func (s *GatewayService) CancelOrder(ctx context.Context, tenant *model.Tenant, input model.CancelOrderInput) (common.Hash, error) {
	return s.submit(ctx, tenant, &clob.Request{Kind: clob.RequestCancel, OrderID: input.ID})
}

func (s *GatewayService) CancelAllOrders(ctx context.Context, tenant *model.Tenant) (common.Hash, error) {
	return s.submit(ctx, tenant, &clob.Request{Kind: clob.RequestCancelAll})
}

// submit encodes req's calldata and relays it on-chain via the shared
// operator executor, queued so at most one call is ever in flight.
func (s *GatewayService) submit(ctx context.Context, tenant *model.Tenant, req *clob.Request) (common.Hash, error) {
	if s.operator == nil {
		return common.Hash{}, fmt.Errorf("gateway has no operator key configured")
	}
	data, value, err := s.encoder.Encode(s.exchangeAddr, req)
	if err != nil {
		return common.Hash{}, err
	}
	amount := uint256.NewInt(0)
	if value != nil && value.Sign() != 0 {
		amount = uint256.MustFromBig(value)
	}
	params := &coretypes.TxRequestParams{
		RequestID:   fmt.Sprintf("%s:%s:%d", tenant.ID, req.Kind, time.Now().UnixNano()),
		EstimateGas: true,
		Tx: &coretypes.TxRequest{
			From:     s.operatorSigner.Address(),
			To:       s.exchangeAddr,
			Value:    amount,
			Data:     data,
			ChainID:  uint256.NewInt(uint64(s.chainID)),
			Variant:  coretypes.Legacy,
			GasPrice: uint256.NewInt(0),
		},
	}
	return s.operator.Submit(ctx, params)
}

// buildSignable constructs a clob.SignableOrder from a raw order request
// when the caller did not supply one already built, deriving the maker
// address from either the gateway's own signer or the request's signer.
func (s *GatewayService) buildSignable(req model.OrderRequest, useGatewaySigner bool) (*clob.SignableOrder, error) {
	var maker, signerAddr common.Address
	if useGatewaySigner {
		maker = s.fastSigner.Address()
		signerAddr = maker
	} else {
		if req.Signer == "" {
			return nil, fmt.Errorf("signer is required")
		}
		signerAddr = common.HexToAddress(req.Signer)
		maker = signerAddr
		if req.SignatureType != nil {
			switch clob.SignatureType(*req.SignatureType) {
			case clob.SignatureProxy, clob.SignatureGnosisSafe:
				maker = deriveProxyAddress(signerAddr, s.proxyFactory, s.proxyInitCodeHash)
			}
		}
	}

	side := clob.Buy
	if strings.EqualFold(req.Side, "SELL") {
		side = clob.Sell
	}
	orderType := parseOrderType(req.OrderType)
	makerAmount, takerAmount := amountsForSide(side, req.Price, req.Size)

	expiration := uint256.NewInt(uint64(req.Expiration))
	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}
	tokenID, err := uint256FromDecimalString(req.TokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid token id: %w", err)
	}

	sigType := clob.SignatureEOA
	if req.SignatureType != nil {
		sigType = clob.SignatureType(*req.SignatureType)
	}

	order := &clob.Order{
		Salt:          salt,
		Maker:         maker,
		Signer:        signerAddr,
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expiration,
		Nonce:         uint256.NewInt(0),
		FeeRateBps:    decimal.Zero,
		Side:          side,
		SignatureType: sigType,
	}
	postOnly := req.PostOnly != nil && *req.PostOnly

	return &clob.SignableOrder{Order: order, OrderType: orderType, PostOnly: postOnly}, nil
}

func (s *GatewayService) getEIP1271Verifier() (*EIP1271Verifier, error) {
	if s.config.Chain.RPCURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	if s.eip1271 == nil {
		ttl := time.Duration(s.config.Chain.EIP1271CacheSeconds) * time.Second
		timeout := time.Duration(s.config.Chain.EIP1271TimeoutMs) * time.Millisecond
		s.eip1271 = NewEIP1271Verifier(s.config.Chain.RPCURL, ttl, timeout, s.config.Chain.EIP1271Retries)
	}
	return s.eip1271, nil
}

func (s *GatewayService) verifySafeSignature(ctx context.Context, order *clob.Order, signature string) error {
	hash, err := polysigner.TypedDataHash(order, order.Signer, s.chainID)
	if err != nil {
		return fmt.Errorf("failed to hash typed data")
	}
	verifier, err := s.getEIP1271Verifier()
	if err != nil {
		return err
	}
	ok, err := verifier.Verify(ctx, order.Maker.Hex(), hash, signature)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid safe signature")
	}
	return nil
}

func parseOrderType(raw string) clob.OrderType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(clob.OrderTypeGTD):
		return clob.OrderTypeGTD
	case string(clob.OrderTypeFAK):
		return clob.OrderTypeFAK
	case string(clob.OrderTypeFOK):
		return clob.OrderTypeFOK
	default:
		return clob.OrderTypeGTC
	}
}

func (s *GatewayService) checkMaxSlippage(tenant *model.Tenant, req model.OrderRequest) error {
	if tenant.Risk.MaxSlippage <= 0 || s.market == nil {
		return nil
	}
	book := s.market.GetBook(req.TokenID)
	if book == nil {
		return nil
	}
	bids, asks := book.GetCopy()
	price := decimal.NewFromFloat(req.Price)
	slippage := decimal.NewFromFloat(tenant.Risk.MaxSlippage)
	one := decimal.NewFromInt(1)

	switch strings.ToUpper(req.Side) {
	case "BUY":
		if len(asks) == 0 {
			return nil
		}
		maxAllowed := asks[0].Price.Mul(one.Add(slippage))
		if price.GreaterThan(maxAllowed) {
			return fmt.Errorf("risk reject: price %.4f exceeds max slippage", req.Price)
		}
	case "SELL":
		if len(bids) == 0 {
			return nil
		}
		minAllowed := bids[0].Price.Mul(one.Sub(slippage))
		if price.LessThan(minAllowed) {
			return fmt.Errorf("risk reject: price %.4f exceeds max slippage", req.Price)
		}
	}
	return nil
}

type apiKeyCreds struct {
	Key        string
	Secret     string
	Passphrase string
}

func resolveAPIKey(tenant *model.Tenant, req model.OrderRequest) (*apiKeyCreds, error) {
	if req.L2 != nil && req.L2.APIKey != "" && req.L2.APISecret != "" && req.L2.APIPassphrase != "" {
		return &apiKeyCreds{Key: req.L2.APIKey, Secret: req.L2.APISecret, Passphrase: req.L2.APIPassphrase}, nil
	}
	if tenant.Creds.L2ApiKey == "" || tenant.Creds.L2ApiSecret == "" || tenant.Creds.L2ApiPassphrase == "" {
		return nil, fmt.Errorf("missing L2 api credentials")
	}
	return &apiKeyCreds{Key: tenant.Creds.L2ApiKey, Secret: tenant.Creds.L2ApiSecret, Passphrase: tenant.Creds.L2ApiPassphrase}, nil
}

func tenantAllowsSigner(tenant *model.Tenant, signer string) bool {
	if len(tenant.AllowedSigners) == 0 {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(signer))
	for _, allowed := range tenant.AllowedSigners {
		if strings.ToLower(strings.TrimSpace(allowed)) == normalized {
			return true
		}
	}
	return false
}

func requestFromOrder(signable *clob.SignableOrder) model.OrderRequest {
	order := signable.Order
	price, size, tokenID := 0.0, 0.0, ""
	if order != nil {
		if order.TokenID != nil {
			tokenID = order.TokenID.Dec()
		}
		switch order.Side {
		case clob.Buy:
			if !order.TakerAmount.IsZero() {
				size, _ = order.TakerAmount.Float64()
				p, _ := order.MakerAmount.Div(order.TakerAmount).Float64()
				price = p
			}
		case clob.Sell:
			if !order.MakerAmount.IsZero() {
				size, _ = order.MakerAmount.Float64()
				p, _ := order.TakerAmount.Div(order.MakerAmount).Float64()
				price = p
			}
		}
	}
	return model.OrderRequest{TokenID: tokenID, Price: price, Size: size, Side: order.Side.String()}
}

func randomSalt() (*uint256.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate order salt: %w", err)
	}
	return new(uint256.Int).SetBytes(buf), nil
}

func uint256FromDecimalString(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("token id is required")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// amountsForSide converts a human price/size pair into the maker/taker
// atomic amounts the contract compares, scaled to 6-decimal USDC units
// per the exchange's collateral convention.
func amountsForSide(side clob.Side, price, size float64) (maker, taker decimal.Decimal) {
	const scale = 1_000_000
	p := decimal.NewFromFloat(price)
	sz := decimal.NewFromFloat(size)
	notional := p.Mul(sz).Mul(decimal.NewFromInt(scale)).Round(0)
	shares := sz.Mul(decimal.NewFromInt(scale)).Round(0)
	if side == clob.Buy {
		return notional, shares
	}
	return shares, notional
}
