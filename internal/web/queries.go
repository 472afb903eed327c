package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/dexter-zone/dexvault/internal/analyzer"
	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/state"
	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

// DisplayAsset is a pool balance in raw and whole-token units.
type DisplayAsset struct {
	Asset     string          `json:"asset"`
	Kind      types.AssetKind `json:"kind"`
	Amount    sdkmath.Int     `json:"amount"`
	Precision uint8           `json:"precision"`
	Display   decimal.Decimal `json:"display"`

	Weight        *decimal.Decimal `json:"weight,omitempty"`
	ScalingFactor *decimal.Decimal `json:"scaling_factor,omitempty"`
}

// PoolSummary is a human-readable view of one pool.
type PoolSummary struct {
	PoolID         uint64          `json:"pool_id"`
	PoolType       string          `json:"pool_type"`
	Engine         string          `json:"engine"`
	Assets         []DisplayAsset  `json:"assets"`
	TotalShare     sdkmath.Int     `json:"total_share"`
	TotalShareView decimal.Decimal `json:"total_share_display"`
	FeePercent     decimal.Decimal `json:"fee_percent"`
	Paused         types.PauseInfo `json:"paused"`
}

func buildPoolSummary(rec types.PoolRecord) (PoolSummary, error) {
	p := rec.Pool
	out := PoolSummary{
		PoolID:     p.PoolID,
		PoolType:   p.PoolType,
		Engine:     string(p.Engine),
		TotalShare: rec.TotalShare,
		FeePercent: decimal.New(int64(p.FeeInfo.TotalFeeBps), -2),
		Paused:     p.Paused,
	}
	for _, a := range p.Assets {
		prec, err := p.PrecisionOf(a.Info)
		if err != nil {
			return out, err
		}
		display, err := utils.ToDisplayAmount(a.AmountOrZero(), prec)
		if err != nil {
			return out, err
		}
		da := DisplayAsset{
			Asset:     a.Info.ID(),
			Kind:      a.Info.Kind,
			Amount:    a.AmountOrZero(),
			Precision: prec,
			Display:   display,
		}
		if da.Weight, err = mathParamOf(p.Math, a.Info, false); err != nil {
			return out, err
		}
		if da.ScalingFactor, err = mathParamOf(p.Math, a.Info, true); err != nil {
			return out, err
		}
		out.Assets = append(out.Assets, da)
	}
	share, err := utils.ToDisplayAmount(rec.TotalShare, p.LpPrecision)
	if err != nil {
		return out, err
	}
	out.TotalShareView = share
	return out, nil
}

// mathParamOf returns the weighted-pool weight, or with scaling set the stableswap scaling factor, of info.
func mathParamOf(m types.MathParams, info types.AssetInfo, scaling bool) (*decimal.Decimal, error) {
	var value sdkmath.LegacyDec
	switch {
	case scaling && m.Stable != nil:
		for _, sf := range m.Stable.ScalingFactors {
			if sf.Info.Equal(info) {
				value = sf.ScalingFactor
			}
		}
	case !scaling && m.Weighted != nil:
		for _, w := range m.Weighted.Weights {
			if w.Info.Equal(info) {
				value = w.Weight
			}
		}
	}
	if value.IsNil() {
		return nil, nil
	}
	out, err := utils.DecToDisplay(value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func poolIDVar(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
}

// blockTimeParam reads ?block_time=, zero meaning the ledger's latest block time.
func blockTimeParam(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("block_time")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.vault.Config())
}

func (ws *WebServer) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	pc, err := ws.vault.QueryRegistry(mux.Vars(r)["pool_type"])
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, pc)
}

func (ws *WebServer) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.vault.ListPools()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	rec, err := ws.vault.GetPoolById(id)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetPoolByAddress(w http.ResponseWriter, r *http.Request) {
	rec, err := ws.vault.GetPoolByAddress(r.URL.Query().Get("addr"))
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetPoolByLpToken(w http.ResponseWriter, r *http.Request) {
	rec, err := ws.vault.GetPoolByLpToken(r.URL.Query().Get("addr"))
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetPoolSummary(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	rec, err := ws.vault.GetPoolById(id)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	summary, err := buildPoolSummary(rec)
	if err != nil {
		webLogger.Error().Err(err).Uint64("pool_id", id).Msg("Failed to build pool summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build pool summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetCumulativePrices(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	bt, err := blockTimeParam(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid block_time")
		return
	}
	q := r.URL.Query()
	if q.Get("offer") != "" || q.Get("ask") != "" {
		offer, err1 := parseAssetInfo(q.Get("offer"))
		ask, err2 := parseAssetInfo(q.Get("ask"))
		if err1 != nil || err2 != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid offer or ask asset")
			return
		}
		resp, err := ws.vault.CumulativePrice(id, bt, offer, ask)
		if err != nil {
			ws.writeLedgerError(w, err)
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, resp)
		return
	}
	resp, err := ws.vault.CumulativePrices(id, bt)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

func (ws *WebServer) handleGetAmpParams(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	bt, err := blockTimeParam(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid block_time")
		return
	}
	amp, err := ws.vault.AmpParams(id, bt)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, amp)
}

func (ws *WebServer) handleGetLpBalance(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	user := mux.Vars(r)["user"]
	bal, err := ws.vault.LpBalance(r.Context(), id, user)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool_id": id,
		"user":    user,
		"balance": bal,
	})
}

type simulateJoinRequest struct {
	Assets            []types.Asset      `json:"assets"`
	MintAmount        *sdkmath.Int       `json:"mint_amount,omitempty"`
	SlippageTolerance *sdkmath.LegacyDec `json:"slippage_tolerance,omitempty"`
	BlockTime         uint64             `json:"block_time,omitempty"`
}

func (ws *WebServer) handleSimulateJoin(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	var req simulateJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	resp, err := ws.vault.OnJoinPool(id, req.BlockTime, pool.JoinRequest{
		AssetsIn:          req.Assets,
		MintAmount:        req.MintAmount,
		SlippageTolerance: req.SlippageTolerance,
	})
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

type simulateExitRequest struct {
	ExitType  types.ExitType `json:"exit_type"`
	BlockTime uint64         `json:"block_time,omitempty"`
}

func (ws *WebServer) handleSimulateExit(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	var req simulateExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	resp, err := ws.vault.OnExitPool(id, req.BlockTime, req.ExitType)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

type simulateSwapRequest struct {
	SwapType    types.SwapType     `json:"swap_type"`
	OfferAsset  types.AssetInfo    `json:"offer_asset"`
	AskAsset    types.AssetInfo    `json:"ask_asset"`
	Amount      sdkmath.Int        `json:"amount"`
	MaxSpread   *sdkmath.LegacyDec `json:"max_spread,omitempty"`
	BeliefPrice *sdkmath.LegacyDec `json:"belief_price,omitempty"`
	BlockTime   uint64             `json:"block_time,omitempty"`
}

func (ws *WebServer) handleSimulateSwap(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	var req simulateSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	resp, err := ws.vault.OnSwap(id, req.BlockTime, pool.SwapRequest{
		SwapType:    req.SwapType,
		OfferAsset:  req.OfferAsset,
		AskAsset:    req.AskAsset,
		Amount:      req.Amount,
		MaxSpread:   req.MaxSpread,
		BeliefPrice: req.BeliefPrice,
	})
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

func (ws *WebServer) handleGetDefunct(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	info, err := ws.vault.GetDefunctPoolInfo(id)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, info)
}

func (ws *WebServer) handleIsRefunded(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	user := mux.Vars(r)["user"]
	refunded, err := ws.vault.IsUserRefunded(id, user)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool_id":  id,
		"user":     user,
		"refunded": refunded,
	})
}

func (ws *WebServer) handleGetOwnershipProposal(w http.ResponseWriter, r *http.Request) {
	p := ws.vault.OwnershipProposal()
	if p == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No ownership proposal")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "addr is required")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  addr,
		"balances": ws.bank.Balances(addr),
	})
}

// limitParam reads ?limit= within 1..100, defaulting to 20.
func limitParam(r *http.Request) int {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	var poolID uint64
	if raw := r.URL.Query().Get("pool_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
			return
		}
		poolID = id
	}

	receipts, err := state.GetRecentReceipts(limit, poolID)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

func (ws *WebServer) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid receipt ID")
		return
	}
	receipt, err := state.GetReceiptByID(id)
	if err != nil {
		webLogger.Error().Err(err).Str("receipt_id", id.String()).Msg("Failed to get receipt")
		ws.writeErrorResponse(w, http.StatusNotFound, "Receipt not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	var poolID uint64
	if raw := r.URL.Query().Get("pool_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
			return
		}
		poolID = id
	}
	summary, err := state.GetActivitySummary(poolID)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get activity summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve activity summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := state.ListSnapshots(limitParam(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// handleGetPriceHistory derives TWAP prices of one pair from stored snapshots plus the live counter.
func (ws *WebServer) handleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := poolIDVar(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}
	q := r.URL.Query()
	offer, err1 := parseAssetInfo(q.Get("offer"))
	ask, err2 := parseAssetInfo(q.Get("ask"))
	if err1 != nil || err2 != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "offer and ask assets are required")
		return
	}

	now := uint64(time.Now().Unix())
	live, err := ws.vault.CumulativePrice(id, now, offer, ask)
	if err != nil {
		ws.writeLedgerError(w, err)
		return
	}
	twaps, err := state.LoadPoolTwaps(id, limitParam(r))
	if err != nil {
		webLogger.Error().Err(err).Uint64("pool_id", id).Msg("Failed to load pool twaps")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve price history")
		return
	}
	twaps = append(twaps, types.Twap{
		BlockTimeLast: now,
		CumulativePrices: []types.CumulativePrice{
			{Offer: live.ExchangeInfo.OfferInfo, Ask: live.ExchangeInfo.AskInfo, Value: live.ExchangeInfo.Rate},
		},
	})

	history, err := analyzer.BuildPriceHistory(twaps, offer, ask, pool.TwapPrecision)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, history)
}

// parseAssetInfo reads "native:uatom" or "token:<addr>"; a bare value is a native denom.
func parseAssetInfo(raw string) (types.AssetInfo, error) {
	info := types.NativeAsset(raw)
	if id, ok := strings.CutPrefix(raw, string(types.AssetKindToken)+":"); ok {
		info = types.TokenAsset(id)
	} else if id, ok := strings.CutPrefix(raw, string(types.AssetKindNative)+":"); ok {
		info = types.NativeAsset(id)
	}
	return info, info.Validate()
}
