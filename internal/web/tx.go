package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/vault"
	"github.com/dexter-zone/dexvault/internal/wallet"
)

// txRequest is the envelope of every message. Funds use the coin string format, e.g. "100uatom,5uosmo".
type txRequest struct {
	Sender    string          `json:"sender"`
	Funds     string          `json:"funds,omitempty"`
	BlockTime uint64          `json:"block_time,omitempty"`
	Msg       json.RawMessage `json:"msg"`
}

type txHandler func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error)

type poolIDMsg struct {
	PoolID uint64 `json:"pool_id"`
}

type addressMsg struct {
	Address string `json:"address"`
}

var txHandlers = map[types.MsgKind]txHandler{
	types.MsgCreatePoolInstance: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.CreatePoolInstanceMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		id, err := v.CreatePoolInstance(ctx, env, msg)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"pool_id": id}, nil
	},
	types.MsgJoinPool: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.JoinPoolMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return v.JoinPool(ctx, env, msg)
	},
	types.MsgExitPool: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.ExitPoolMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return v.ExitPool(ctx, env, msg)
	},
	types.MsgSwap: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.SwapMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return v.Swap(ctx, env, msg)
	},
	types.MsgUpdateConfig: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.UpdateConfigMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdateConfig(ctx, env, msg)
	},
	types.MsgUpdatePoolTypeConfig: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.UpdatePoolTypeConfigMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdatePoolTypeConfig(ctx, env, msg)
	},
	types.MsgUpdatePoolInstanceConfig: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg vault.UpdatePoolInstanceConfigMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdatePoolInstanceConfig(ctx, env, msg)
	},
	types.MsgUpdatePoolParams: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg struct {
			PoolID uint64          `json:"pool_id"`
			Params json.RawMessage `json:"params"`
		}
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdatePoolParams(ctx, env, msg.PoolID, msg.Params)
	},
	types.MsgUpdateFee: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg struct {
			PoolID      uint64 `json:"pool_id"`
			TotalFeeBps uint16 `json:"total_fee_bps"`
		}
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdateFee(ctx, env, msg.PoolID, msg.TotalFeeBps)
	},
	types.MsgAddToRegistry: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg types.PoolTypeConfig
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.AddToRegistry(ctx, env, msg)
	},
	types.MsgUpdatePauseInfo: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg struct {
			Target types.PauseTarget `json:"target"`
			Paused types.PauseInfo   `json:"paused"`
		}
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.UpdatePauseInfo(ctx, env, msg.Target, msg.Paused)
	},
	types.MsgAddToWhitelist: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg addressMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.AddToWhitelist(ctx, env, msg.Address)
	},
	types.MsgRemoveFromWhitelist: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg addressMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.RemoveFromWhitelist(ctx, env, msg.Address)
	},
	types.MsgProposeNewOwner: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg struct {
			NewOwner  string `json:"new_owner"`
			ExpiresIn uint64 `json:"expires_in"`
		}
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.ProposeNewOwner(ctx, env, msg.NewOwner, msg.ExpiresIn)
	},
	types.MsgDropOwnershipProposal: func(ctx context.Context, v *vault.Vault, env vault.Env, _ json.RawMessage) (interface{}, error) {
		return nil, v.DropOwnershipProposal(ctx, env)
	},
	types.MsgClaimOwnership: func(ctx context.Context, v *vault.Vault, env vault.Env, _ json.RawMessage) (interface{}, error) {
		return nil, v.ClaimOwnership(ctx, env)
	},
	types.MsgDefunctPool: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg poolIDMsg
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		return nil, v.DefunctPool(ctx, env, msg.PoolID)
	},
	types.MsgProcessRefundBatch: func(ctx context.Context, v *vault.Vault, env vault.Env, raw json.RawMessage) (interface{}, error) {
		var msg struct {
			PoolID uint64   `json:"pool_id"`
			Users  []string `json:"users"`
		}
		if err := decodeMsg(raw, &msg); err != nil {
			return nil, err
		}
		results, err := v.ProcessRefundBatch(ctx, env, msg.PoolID, msg.Users)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"refunds": results}, nil
	},
}

// badRequest marks envelope and payload decoding failures.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }

func decodeMsg(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest{fmt.Errorf("invalid msg: %w", err)}
	}
	return nil
}

// handleTx executes one ledger message. A zero block_time uses the wall clock.
func (ws *WebServer) handleTx(w http.ResponseWriter, r *http.Request) {
	kind := types.MsgKind(mux.Vars(r)["kind"])
	handler, ok := txHandlers[kind]
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Unknown message kind: "+string(kind))
		return
	}

	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Sender == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "sender is required")
		return
	}
	funds, err := sdk.ParseCoinsNormalized(req.Funds)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid funds: "+err.Error())
		return
	}
	env := vault.Env{Sender: req.Sender, Funds: funds, BlockTime: req.BlockTime}
	if env.BlockTime == 0 {
		env.BlockTime = uint64(time.Now().Unix())
	}

	result, err := handler(r.Context(), ws.vault, env, req.Msg)
	if err != nil {
		if br, ok := err.(badRequest); ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, br.Error())
			return
		}
		ws.writeLedgerError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"kind":       kind,
		"block_time": env.BlockTime,
		"result":     result,
	})
}

type fundRequest struct {
	Address string       `json:"address"`
	Coins   string       `json:"coins,omitempty"`
	Token   string       `json:"token,omitempty"`
	Amount  *sdkmath.Int `json:"amount,omitempty"`
}

// handleFund credits an account on the in-memory bank.
func (ws *WebServer) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Coins != "" {
		coins, err := sdk.ParseCoinsNormalized(req.Coins)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid coins: "+err.Error())
			return
		}
		if err := ws.bank.Fund(req.Address, coins); err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Token != "" {
		if req.Amount == nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "amount is required for token funding")
			return
		}
		if err := ws.bank.FundToken(req.Address, req.Token, *req.Amount); err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	webLogger.Info().Str("address", req.Address).Str("coins", req.Coins).Str("token", req.Token).Msg("Funded account")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  req.Address,
		"balances": ws.bank.Balances(req.Address),
	})
}

// handleAddRewardSchedule registers a reward schedule on the in-memory staking collaborator.
func (ws *WebServer) handleAddRewardSchedule(w http.ResponseWriter, r *http.Request) {
	var rs wallet.RewardSchedule
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := ws.staking.AddRewardSchedule(rs); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, rs)
}
