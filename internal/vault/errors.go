package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

// Error categories. Every error returned by the ledger matches exactly one of them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrPoolResponse = errors.New("pool math failure")
	ErrSlippage     = errors.New("slippage bound violated")
	ErrLifecycle    = errors.New("lifecycle error")
	ErrInvariant    = errors.New("invariant violation")
)

// Validation errors.
var (
	ErrUnauthorized                 = errors.New("unauthorized")
	ErrInvalidAssets                = errors.New("invalid assets")
	ErrRepeatedAssets               = errors.New("repeated assets in asset infos")
	ErrInvalidNumberOfAssets        = errors.New("invalid number of assets")
	ErrMissingNativeAssetPrecision  = errors.New("missing precision for native asset")
	ErrInvalidFeeInfo               = errors.New("invalid fee info")
	ErrInvalidPoolCreationFee       = errors.New("pool creation fee must be null or greater than 0")
	ErrInsufficientNativeTokensSent = errors.New("insufficient native tokens sent")
	ErrInvalidAmount                = errors.New("amount cannot be 0")
	ErrSameToken                    = errors.New("cannot swap same tokens")
	ErrMismatchedAssets             = errors.New("mismatched assets")
	ErrPoolNotFound                 = errors.New("pool not found")
	ErrPoolTypeNotFound             = errors.New("config for pool type not found")
	ErrPoolTypeAlreadyExists        = errors.New("pool type already exists")
	ErrUnknownEngine                = errors.New("unknown pool engine")
	ErrAutoStakeDisabled            = errors.New("auto stake is disabled")
	ErrInvalidExitRequest           = errors.New("invalid exit request")
	ErrInsufficientLpTokensToExit   = errors.New("cannot burn more LP tokens than what has been sent")
	ErrUnexpectedLpTokens           = errors.New("received LP tokens do not match the burn amount")
	ErrSameOwner                    = errors.New("new owner cannot be same")
	ErrNoOwnershipProposal          = errors.New("ownership proposal not found")
	ErrOwnerCannotBeWhitelisted     = errors.New("cannot add owner to whitelist")
	ErrAddressAlreadyWhitelisted    = errors.New("address already whitelisted")
	ErrAddressNotWhitelisted        = errors.New("address is not whitelisted")
	ErrInvalidPauseTarget           = errors.New("exactly one of pool_id and pool_type must be set")
	ErrInvalidParams                = errors.New("invalid parameters")
)

// Pool response errors.
var (
	ErrPoolQueryFailed = errors.New("pool logic not satisfied")
	ErrSwapAmountZero  = errors.New("swap in / out amount cannot be 0")
	ErrBurnAmountZero  = errors.New("number of LP tokens to burn cannot be 0")
)

// Slippage errors.
var (
	ErrSlippageExceeded = errors.New("minted LP tokens below min_lp_to_receive")
	ErrMinReceive       = errors.New("return amount is less than min_receive")
	ErrMaxSpend         = errors.New("offer amount is more than max_spend")
	ErrMinAssetsOut     = errors.New("assets out below min_assets_out")
	ErrMaxLpToBurn      = errors.New("burn amount above max_lp_to_burn")
)

// Lifecycle errors.
var (
	ErrPoolPaused       = errors.New("pool is paused")
	ErrPoolTypeDisabled = errors.New("pool type is disabled")
	ErrPoolDefunct      = errors.New("pool is defunct")
	ErrPoolNotDefunct   = errors.New("pool is not defunct")
	ErrProposalExpired  = errors.New("ownership proposal expired")
)

// Invariant errors.
var (
	ErrActiveRewardSchedules = errors.New("pool has active or future reward schedules")
	ErrRefundExceedsSnapshot = errors.New("refunds exceed the defunct LP supply")
	ErrBalanceUnderflow      = errors.New("pool balance underflow")
	ErrSettlementFailed      = errors.New("token settlement failed")
)

var categoryOf = map[error]error{}

func init() {
	register := func(category error, errs ...error) {
		for _, err := range errs {
			categoryOf[err] = category
		}
	}
	register(ErrValidation,
		ErrUnauthorized, ErrInvalidAssets, ErrRepeatedAssets, ErrInvalidNumberOfAssets,
		ErrMissingNativeAssetPrecision, ErrInvalidFeeInfo, ErrInvalidPoolCreationFee,
		ErrInsufficientNativeTokensSent, ErrInvalidAmount, ErrSameToken, ErrMismatchedAssets, ErrPoolNotFound,
		ErrPoolTypeNotFound, ErrPoolTypeAlreadyExists, ErrUnknownEngine, ErrAutoStakeDisabled,
		ErrInvalidExitRequest, ErrInsufficientLpTokensToExit, ErrUnexpectedLpTokens, ErrSameOwner,
		ErrNoOwnershipProposal, ErrOwnerCannotBeWhitelisted, ErrAddressAlreadyWhitelisted,
		ErrAddressNotWhitelisted, ErrInvalidPauseTarget, ErrInvalidParams,
	)
	register(ErrPoolResponse, ErrPoolQueryFailed, ErrSwapAmountZero, ErrBurnAmountZero)
	register(ErrSlippage, ErrSlippageExceeded, ErrMinReceive, ErrMaxSpend, ErrMinAssetsOut, ErrMaxLpToBurn)
	register(ErrLifecycle, ErrPoolPaused, ErrPoolTypeDisabled, ErrPoolDefunct,
		ErrPoolNotDefunct, ErrProposalExpired)
	register(ErrInvariant, ErrActiveRewardSchedules, ErrRefundExceedsSnapshot, ErrBalanceUnderflow,
		ErrSettlementFailed)
}

// Error is the structured abort reason of a ledger message.
type Error struct {
	Category error
	Kind     error
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

// Unwrap exposes both the specific error and its category to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Category}
}

// fail builds an *Error for a registered sentinel.
func fail(kind error, format string, args ...any) error {
	category, ok := categoryOf[kind]
	if !ok {
		category = ErrInvariant
	}
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{Category: category, Kind: kind, Detail: detail}
}

// failWith wraps a collaborator or engine error under kind.
func failWith(kind error, err error) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	return &Error{Category: categoryOf[kind], Kind: kind, Detail: err.Error()}
}

// checkAmount rejects amounts that are not positive or do not fit in 128 bits.
func checkAmount(amount sdkmath.Int, what string) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fail(ErrInvalidAmount, "%s must be positive", what)
	}
	if err := types.ValidateAmount(amount); err != nil {
		return fail(ErrInvalidAmount, "%s: %v", what, err)
	}
	return nil
}

// checkAssets validates deposit assets; amounts out of range are reported as ErrInvalidAmount.
func checkAssets(assets []types.Asset) error {
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			if errors.Is(err, types.ErrAmountTooLarge) {
				return failWith(ErrInvalidAmount, err)
			}
			return failWith(ErrInvalidAssets, err)
		}
	}
	return nil
}

func checkExitType(exit types.ExitType) error {
	if err := exit.Validate(); err != nil {
		if errors.Is(err, types.ErrAmountTooLarge) {
			return failWith(ErrInvalidAmount, err)
		}
		return failWith(ErrInvalidExitRequest, err)
	}
	return nil
}

// Category returns the category sentinel of err, or nil when err did not come from the ledger.
func Category(err error) error {
	for _, c := range []error{ErrValidation, ErrPoolResponse, ErrSlippage, ErrLifecycle, ErrInvariant} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
