package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/vault"
	"github.com/dexter-zone/dexvault/internal/wallet"
)

type fixture struct {
	t    *testing.T
	bank *wallet.Bank
	v    *vault.Vault
	ws   *WebServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bank := wallet.NewBank()
	staking := wallet.NewStaking()
	reg := prometheus.NewRegistry()

	fee := types.FeeInfo{TotalFeeBps: 30, ProtocolFeePercent: 20, DevFeePercent: 10, DeveloperAddr: "developer"}
	v, err := vault.New(vault.InstantiateMsg{
		Owner:        "owner",
		VaultAddress: "vault",
		FeeCollector: "collector",
		PoolConfigs: []types.PoolTypeConfig{
			{PoolType: "xyk", Engine: types.EngineXYK, DefaultFeeInfo: fee, AllowInstantiation: types.AllowAnyone},
		},
	}, bank, vault.WithStaking(staking), vault.WithMetrics(vault.NewMetrics(reg)))
	require.NoError(t, err)

	ws := NewWebServer("0", v, WithBank(bank, true), WithStaking(staking), WithGatherer(reg))
	return &fixture{t: t, bank: bank, v: v, ws: ws}
}

func (f *fixture) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.ws.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *fixture) tx(kind types.MsgKind, sender, funds string, msg interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	f.t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(f.t, err)
	return f.do("POST", "/api/tx/"+string(kind), map[string]interface{}{
		"sender":     sender,
		"funds":      funds,
		"block_time": 1_000,
		"msg":        json.RawMessage(raw),
	})
}

// seedPool creates an xyk uatom/uosmo pool and deposits 1M of each from alice.
func (f *fixture) seedPool() {
	f.t.Helper()
	require.NoError(f.t, f.bank.Fund("alice", sdk.NewCoins(sdk.NewInt64Coin("uatom", 10_000_000), sdk.NewInt64Coin("uosmo", 10_000_000))))

	rec, body := f.tx(types.MsgCreatePoolInstance, "alice", "", map[string]interface{}{
		"pool_type":   "xyk",
		"asset_infos": []types.AssetInfo{types.NativeAsset("uosmo"), types.NativeAsset("uatom")},
		"native_asset_precisions": []types.AssetPrecision{
			{Info: types.NativeAsset("uatom"), Precision: 6},
			{Info: types.NativeAsset("uosmo"), Precision: 6},
		},
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(f.t, 1, body["result"].(map[string]interface{})["pool_id"])

	rec, _ = f.tx(types.MsgJoinPool, "alice", "1000000uatom,1000000uosmo", map[string]interface{}{
		"pool_id": 1,
		"assets": []map[string]interface{}{
			{"info": types.NativeAsset("uatom"), "amount": "1000000"},
			{"info": types.NativeAsset("uosmo"), "amount": "1000000"},
		},
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("GET", "/api/config", nil)
	req.Header.Set(requestIDHeader, "2f1c7d5e-8a6b-4c1d-9e0f-1a2b3c4d5e6f")
	rec := httptest.NewRecorder()
	f.ws.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "2f1c7d5e-8a6b-4c1d-9e0f-1a2b3c4d5e6f", rec.Header().Get(requestIDHeader))
}

func TestSwapOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedPool()

	rec, body := f.tx(types.MsgSwap, "alice", "10000uatom", map[string]interface{}{
		"pool_id":     1,
		"swap_type":   types.GiveIn,
		"offer_asset": types.NativeAsset("uatom"),
		"ask_asset":   types.NativeAsset("uosmo"),
		"amount":      "10000",
		"max_spread":  "0.02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := body["result"].(map[string]interface{})
	assert.Equal(t, "10000", result["amount_in"])
	assert.Equal(t, "9871", result["amount_out"])

	rec, body = f.do("GET", "/api/pools/1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assets := body["assets"].([]interface{})
	require.Len(t, assets, 2)
	first := assets[0].(map[string]interface{})
	assert.Equal(t, "uatom", first["asset"])
	assert.Equal(t, "1010000", first["amount"])
	assert.Equal(t, "1.01", first["display"])
	assert.Equal(t, "0.3", body["fee_percent"])

	rec, body = f.do("GET", "/api/bank/balances?addr=collector", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", body["balances"].(map[string]interface{})[types.NativeAsset("uosmo").Key()])
}

func TestLedgerErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	f.seedPool()

	rec, body := f.tx(types.MsgSwap, "alice", "10000uatom", map[string]interface{}{
		"pool_id":     1,
		"swap_type":   types.GiveIn,
		"offer_asset": types.NativeAsset("uatom"),
		"ask_asset":   types.NativeAsset("uatom"),
		"amount":      "10000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, vault.ErrValidation.Error(), body["category"])

	rec, _ = f.tx(types.MsgDefunctPool, "alice", "", map[string]interface{}{"pool_id": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do("GET", "/api/pools/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.tx(types.MsgSwap, "alice", "10000uatom", map[string]interface{}{
		"pool_id":     1,
		"swap_type":   types.GiveIn,
		"offer_asset": types.NativeAsset("uatom"),
		"ask_asset":   types.NativeAsset("uosmo"),
		"amount":      "10000",
		"min_receive": "9872",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTxEnvelopeValidation(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do("POST", "/api/tx/not_a_message", map[string]interface{}{"sender": "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do("POST", "/api/tx/swap", map[string]interface{}{"msg": map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do("POST", "/api/tx/swap", map[string]interface{}{"sender": "alice", "funds": "ten atoms"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do("POST", "/api/tx/swap", map[string]interface{}{"sender": "alice", "msg": "not an object"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoolQueries(t *testing.T) {
	f := newFixture(t)
	f.seedPool()

	rec, body := f.do("GET", "/api/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = f.do("GET", "/api/pools/by-address?addr=vault/pool/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000000", body["total_share"])

	rec, _ = f.do("GET", "/api/pools/by-lp-token?addr=vault/lp/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do("GET", "/api/pools/1/lp-balance/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000000", body["balance"])

	rec, _ = f.do("GET", "/api/registry/xyk", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do("GET", "/api/registry/curve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do("POST", "/api/pools/1/simulate/swap", map[string]interface{}{
		"swap_type":   types.GiveIn,
		"offer_asset": types.NativeAsset("uatom"),
		"ask_asset":   types.NativeAsset("uosmo"),
		"amount":      "10000",
		"max_spread":  "0.02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "9871", body["trade_params"].(map[string]interface{})["amount_out"])

	// 2^200 does not fit an unsigned 128-bit amount
	rec, body = f.do("POST", "/api/pools/1/simulate/swap", map[string]interface{}{
		"swap_type":   types.GiveIn,
		"offer_asset": types.NativeAsset("uatom"),
		"ask_asset":   types.NativeAsset("uosmo"),
		"amount":      "1606938044258990275541962092341162602522202993782792835301376",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, vault.ErrValidation.Error(), body["category"])

	rec, _ = f.do("GET", "/api/pools/1/cumulative-prices?offer=uatom&ask=native:uosmo", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do("GET", "/api/pools/1/cumulative-prices?offer=uatom&ask=native:", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do("GET", "/api/ownership-proposal", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedPool()

	rec, _ := f.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dexvault_messages_total")
}

func TestFaucet(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do("POST", "/api/bank/fund", map[string]interface{}{"address": "carol", "coins": "500uatom"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500", body["balances"].(map[string]interface{})[types.NativeAsset("uatom").Key()])

	rec, _ = f.do("POST", "/api/bank/fund", map[string]interface{}{"address": "carol", "token": "unknown", "amount": "5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do("POST", "/api/staking/reward-schedules", map[string]interface{}{"lp_token": "vault/lp/1", "start_time": 10, "end_time": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistenceRoutesDisabledByDefault(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do("GET", "/api/receipts", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do("GET", "/api/pools/1/price-history?offer=uatom&ask=uosmo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMathParamDisplay(t *testing.T) {
	atom, osmo := types.NativeAsset("uatom"), types.NativeAsset("uosmo")
	weighted := types.MathParams{Weighted: &types.WeightedMathParams{Weights: []types.AssetWeight{
		{Info: atom, Weight: sdkmath.LegacyMustNewDecFromStr("0.8")},
		{Info: osmo, Weight: sdkmath.LegacyMustNewDecFromStr("0.2")},
	}}}
	w, err := mathParamOf(weighted, osmo, false)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "0.2", w.String())

	sf, err := mathParamOf(weighted, osmo, true)
	require.NoError(t, err)
	assert.Nil(t, sf)

	w, err = mathParamOf(types.MathParams{}, atom, false)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestParseAssetInfo(t *testing.T) {
	info, err := parseAssetInfo("token:cw20addr")
	require.NoError(t, err)
	assert.Equal(t, types.TokenAsset("cw20addr"), info)

	info, err = parseAssetInfo("uatom")
	require.NoError(t, err)
	assert.Equal(t, types.NativeAsset("uatom"), info)
}

func TestGRPCHealth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer("0")
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: LedgerService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	s.SetServing(true)
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: LedgerService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
