package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidExitType = errors.New("invalid exit type")
	ErrInvalidSwapType = errors.New("invalid swap type")
)

// Response is the outcome an engine attaches to every computation. Engines never fail with an error;
// they return a Failure with a reason instead.
type Response struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func Success() Response {
	return Response{Success: true}
}

func Failure(reason string) Response {
	return Response{Success: false, Reason: reason}
}

func Failuref(format string, args ...any) Response {
	return Failure(fmt.Sprintf(format, args...))
}

func (r Response) IsSuccess() bool {
	return r.Success
}

func (r Response) String() string {
	if r.Success {
		return "success"
	}
	return "failure: " + r.Reason
}

// SwapType selects the fixed side of a swap.
type SwapType string

const (
	// GiveIn fixes the offer amount.
	GiveIn SwapType = "give_in"
	// GiveOut fixes the ask amount.
	GiveOut SwapType = "give_out"
)

func (s SwapType) Validate() error {
	if s != GiveIn && s != GiveOut {
		return fmt.Errorf("%w: %q", ErrInvalidSwapType, s)
	}
	return nil
}

// ExitType is a tagged union; exactly one field is set.
type ExitType struct {
	ExactLpBurn    *sdkmath.Int `json:"exact_lp_burn,omitempty"`
	ExactAssetsOut []Asset      `json:"exact_assets_out,omitempty"`
}

func ExactLpBurn(amount sdkmath.Int) ExitType {
	return ExitType{ExactLpBurn: &amount}
}

func ExactAssetsOut(assets []Asset) ExitType {
	return ExitType{ExactAssetsOut: assets}
}

func (e ExitType) IsImbalanced() bool {
	return e.ExactLpBurn == nil
}

func (e ExitType) Validate() error {
	switch {
	case e.ExactLpBurn != nil && len(e.ExactAssetsOut) > 0:
		return fmt.Errorf("%w: both exact_lp_burn and exact_assets_out set", ErrInvalidExitType)
	case e.ExactLpBurn == nil && len(e.ExactAssetsOut) == 0:
		return fmt.Errorf("%w: neither exact_lp_burn nor exact_assets_out set", ErrInvalidExitType)
	case e.ExactLpBurn != nil && (e.ExactLpBurn.IsNil() || e.ExactLpBurn.IsNegative()):
		return fmt.Errorf("%w: exact_lp_burn must be a non-negative amount", ErrInvalidExitType)
	case e.ExactLpBurn != nil:
		if err := ValidateAmount(*e.ExactLpBurn); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidExitType, err)
		}
	}
	for _, a := range e.ExactAssetsOut {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidExitType, err)
		}
	}
	return nil
}

// AfterJoinResponse is the engine's answer to a join request.
type AfterJoinResponse struct {
	ProvidedAssets []Asset     `json:"provided_assets"`
	NewShares      sdkmath.Int `json:"new_shares"`
	Response       Response    `json:"response"`
	Fee            []Asset     `json:"fee,omitempty"`
}

func JoinFailure(reason string) AfterJoinResponse {
	return AfterJoinResponse{NewShares: sdkmath.ZeroInt(), Response: Failure(reason)}
}

// AfterExitResponse is the engine's answer to an exit request.
type AfterExitResponse struct {
	AssetsOut  []Asset     `json:"assets_out"`
	BurnShares sdkmath.Int `json:"burn_shares"`
	Response   Response    `json:"response"`
	Fee        []Asset     `json:"fee,omitempty"`
}

func ExitFailure(reason string) AfterExitResponse {
	return AfterExitResponse{BurnShares: sdkmath.ZeroInt(), Response: Failure(reason)}
}

// Trade is the priced leg of a swap. AmountOut is net of fees charged in the ask asset.
type Trade struct {
	AmountIn  sdkmath.Int `json:"amount_in"`
	AmountOut sdkmath.Int `json:"amount_out"`
	Spread    sdkmath.Int `json:"spread"`
}

// SwapResponse is the engine's answer to a swap request.
type SwapResponse struct {
	TradeParams Trade    `json:"trade_params"`
	Response    Response `json:"response"`
	Fee         *Asset   `json:"fee,omitempty"`
}

func SwapFailure(reason string) SwapResponse {
	zero := sdkmath.ZeroInt()
	return SwapResponse{
		TradeParams: Trade{AmountIn: zero, AmountOut: zero, Spread: zero},
		Response:    Failure(reason),
	}
}

// AssetExchangeRate is one cumulative price counter.
type AssetExchangeRate struct {
	OfferInfo AssetInfo   `json:"offer_info"`
	AskInfo   AssetInfo   `json:"ask_info"`
	Rate      sdkmath.Int `json:"rate"`
}

type CumulativePriceResponse struct {
	ExchangeInfo AssetExchangeRate `json:"exchange_info"`
	TotalShare   sdkmath.Int       `json:"total_share"`
}

type CumulativePricesResponse struct {
	ExchangeInfos []AssetExchangeRate `json:"exchange_infos"`
	TotalShare    sdkmath.Int         `json:"total_share"`
}
