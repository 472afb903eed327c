package pool

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

const (
	// iterations bounds Newton's method for both D and y.
	iterations = 32

	MaxAmp             uint64 = 1_000_000
	MaxAmpChange       uint64 = 10
	MinAmpChangingTime uint64 = 86_400
	AmpPrecision       uint64 = 100
)

var (
	errYNotConverging = errors.New("y is not converging")
	errEmptyBalance   = errors.New("pool balance is zero")

	decScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(utils.MaxPrecision)), nil)
	bigOne   = big.NewInt(1)
)

// Balances inside the invariant are big.Int atoms of an 18 decimal fixed point number, already multiplied by
// the asset's scaling factor. D and the intermediate products of the Newton steps exceed the 256-bit limit of
// sdkmath.Int for large pools, so the solver works on math/big directly.

// atomsOf converts a raw amount of the given precision into 18 decimal atoms.
func atomsOf(amount sdkmath.Int, precision uint8) *big.Int {
	return new(big.Int).Mul(amount.BigInt(), utils.Pow10(utils.MaxPrecision-precision).BigInt())
}

// toXp normalizes a raw amount and applies the scaling factor, rounding down.
func toXp(amount sdkmath.Int, precision uint8, scaling sdkmath.LegacyDec) *big.Int {
	atoms := atomsOf(amount, precision)
	return atoms.Mul(atoms, scaling.BigInt()).Quo(atoms, decScale)
}

// toXpCeil is toXp rounding up.
func toXpCeil(amount sdkmath.Int, precision uint8, scaling sdkmath.LegacyDec) *big.Int {
	atoms := atomsOf(amount, precision)
	return ceilQuo(atoms.Mul(atoms, scaling.BigInt()), decScale)
}

// fromXp removes the scaling factor and converts back to a raw amount, rounding down.
func fromXp(xp *big.Int, precision uint8, scaling sdkmath.LegacyDec) sdkmath.Int {
	atoms := new(big.Int).Mul(xp, decScale)
	atoms.Quo(atoms, scaling.BigInt())
	atoms.Quo(atoms, utils.Pow10(utils.MaxPrecision-precision).BigInt())
	return sdkmath.NewIntFromBigInt(atoms)
}

// fromXpCeil is fromXp rounding up.
func fromXpCeil(xp *big.Int, precision uint8, scaling sdkmath.LegacyDec) sdkmath.Int {
	atoms := ceilQuo(new(big.Int).Mul(xp, decScale), scaling.BigInt())
	return sdkmath.NewIntFromBigInt(ceilQuo(atoms, utils.Pow10(utils.MaxPrecision-precision).BigInt()))
}

func ceilQuo(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, bigOne)
	}
	return q
}

func absDiff(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	return d.Abs(d)
}

// ann is amp * n with the amp precision removed.
func ann(amp uint64, n int) *big.Int {
	out := new(big.Int).Mul(new(big.Int).SetUint64(amp), big.NewInt(int64(n)))
	return out.Quo(out, new(big.Int).SetUint64(AmpPrecision))
}

// computeD solves the stableswap invariant
//
//	A * sum(x_i) * n**n + D = A * D * n**n + D**(n+1) / (n**n * prod(x_i))
//
// iterating D = (Ann*S + D_p*n) * D / ((Ann - 1) * D + (n + 1) * D_p) until it moves by at most one atom.
func computeD(amp uint64, xp []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, x := range xp {
		if x.Sign() <= 0 {
			return new(big.Int)
		}
		sum.Add(sum, x)
	}

	n := big.NewInt(int64(len(xp)))
	nPlusOne := big.NewInt(int64(len(xp) + 1))
	a := ann(amp, len(xp))
	annSum := new(big.Int).Mul(a, sum)
	annMinusOne := new(big.Int).Sub(a, bigOne)

	d := new(big.Int).Set(sum)
	for i := 0; i < iterations; i++ {
		dp := new(big.Int).Set(d)
		for _, x := range xp {
			dp.Mul(dp, d)
			dp.Quo(dp, new(big.Int).Mul(x, n))
		}
		prev := d

		num := new(big.Int).Mul(dp, n)
		num.Add(num, annSum)
		num.Mul(num, d)

		den := new(big.Int).Mul(annMinusOne, d)
		den.Add(den, new(big.Int).Mul(nPlusOne, dp))
		if den.Sign() == 0 {
			return prev
		}
		d = num.Quo(num, den)

		if absDiff(d, prev).Cmp(bigOne) <= 0 {
			return d
		}
	}
	return d
}

// calcY returns the balance of xp[to] that keeps D unchanged when xp[from] becomes newFrom. The result is rounded
// up by one atom so that callers never pay out more than the curve allows.
func calcY(amp uint64, xp []*big.Int, from, to int, newFrom *big.Int) (*big.Int, error) {
	if from == to {
		return nil, errors.New("offer and ask assets are the same")
	}
	n := big.NewInt(int64(len(xp)))
	a := ann(amp, len(xp))
	if a.Sign() == 0 {
		return nil, ErrIncorrectAmp
	}

	d := computeD(amp, xp)
	if d.Sign() == 0 {
		return nil, errEmptyBalance
	}

	c := new(big.Int).Set(d)
	sum := new(big.Int)
	for i, x := range xp {
		var v *big.Int
		switch i {
		case from:
			v = newFrom
		case to:
			continue
		default:
			v = x
		}
		if v.Sign() <= 0 {
			return nil, errEmptyBalance
		}
		c.Mul(c, d)
		c.Quo(c, new(big.Int).Mul(v, n))
		sum.Add(sum, v)
	}
	c.Mul(c, d)
	c.Quo(c, new(big.Int).Mul(a, n))
	b := new(big.Int).Add(sum, new(big.Int).Quo(d, a))

	y := new(big.Int).Set(d)
	for i := 0; i < iterations; i++ {
		prev := y
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Lsh(y, 1)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			return nil, errYNotConverging
		}
		y = num.Quo(num, den)
		if absDiff(y, prev).Cmp(bigOne) <= 0 {
			return y.Add(y, bigOne), nil
		}
	}
	return nil, errYNotConverging
}

// currentAmp interpolates the amp linearly between the ramp endpoints and clamps to next_amp once the ramp
// has finished.
func currentAmp(p *types.StableMathParams, blockTime uint64) uint64 {
	if blockTime >= p.NextAmpTime || p.NextAmpTime <= p.InitAmpTime {
		return p.NextAmp
	}
	elapsed := blockTime - p.InitAmpTime
	if blockTime < p.InitAmpTime {
		elapsed = 0
	}
	span := p.NextAmpTime - p.InitAmpTime

	ratio := func(rng uint64) uint64 {
		v := new(big.Int).Mul(new(big.Int).SetUint64(rng), new(big.Int).SetUint64(elapsed))
		return v.Quo(v, new(big.Int).SetUint64(span)).Uint64()
	}
	if p.NextAmp > p.InitAmp {
		return p.InitAmp + ratio(p.NextAmp-p.InitAmp)
	}
	return p.InitAmp - ratio(p.InitAmp-p.NextAmp)
}
