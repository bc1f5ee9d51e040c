// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package heat

import "fmt"

// Max is the upper bound of the heat score, inclusive. Heat is always
// in the closed range [0, Max].
const Max = 1000

// Scale is the fixed-point denominator for decay_factor and the
// ADAPTIVE reorg threshold: a factor of 0.9 is represented as the
// integer 900.
const Scale = 1000

// readBump is the amount heat increases by on a successful read:
// 0.10 * Max.
const readBump = Max / 10

// defaultOnInsert is the heat a freshly inserted node or chunk
// starts at: low enough that it begins life in the coldest tier
// alongside its T4 encoding, but nonzero so a single read visibly
// moves it.
const defaultOnInsert = Max / 10

// DefaultInsertHeat is the heat value a newly inserted inline node or
// chunk is given before any read has touched it.
func DefaultInsertHeat() int {
	return defaultOnInsert
}

// Tier is one of the five compression tiers, ordered hot to cold.
type Tier uint8

const (
	T0 Tier = iota // hottest, least compressed
	T1
	T2
	T3
	T4 // coldest, most compressed
)

func (t Tier) String() string {
	switch t {
	case T0:
		return "T0"
	case T1:
		return "T1"
	case T2:
		return "T2"
	case T3:
		return "T3"
	case T4:
		return "T4"
	default:
		return fmt.Sprintf("T?(%d)", uint8(t))
	}
}

// ParseTier parses a tier from its string representation, as found in
// a tier-config file.
func ParseTier(name string) (Tier, error) {
	switch name {
	case "T0":
		return T0, nil
	case "T1":
		return T1, nil
	case "T2":
		return T2, nil
	case "T3":
		return T3, nil
	case "T4":
		return T4, nil
	default:
		return 0, fmt.Errorf("heat: unknown tier %q", name)
	}
}

// TierForHeat maps a heat score to its tier. The mapping is
// monotonic and evaluated only when heat changes — callers must not
// recompute it on every read. Ties break toward the colder tier,
// which the strict inequalities below already guarantee: a heat of
// exactly 700 fails ">700" and falls through to T1.
func TierForHeat(h int) Tier {
	switch {
	case h > 700:
		return T0
	case h > 400:
		return T1
	case h > 200:
		return T2
	case h > 100:
		return T3
	default:
		return T4
	}
}

// UpdateOnRead returns the heat that results from a single successful
// read of the given current heat, capped at Max.
func UpdateOnRead(h int) int {
	h += readBump
	if h > Max {
		return Max
	}
	return h
}

// DecayStrategy selects how heat is reduced when a decay pass runs.
type DecayStrategy uint8

const (
	DecayNone DecayStrategy = iota
	DecayExponential
	DecayLinear
	DecayTimeBased
)

func (s DecayStrategy) String() string {
	switch s {
	case DecayNone:
		return "none"
	case DecayExponential:
		return "exponential"
	case DecayLinear:
		return "linear"
	case DecayTimeBased:
		return "time_based"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseDecayStrategy parses a decay strategy from its string
// representation.
func ParseDecayStrategy(name string) (DecayStrategy, error) {
	switch name {
	case "none":
		return DecayNone, nil
	case "exponential":
		return DecayExponential, nil
	case "linear":
		return DecayLinear, nil
	case "time_based":
		return DecayTimeBased, nil
	default:
		return 0, fmt.Errorf("heat: unknown decay strategy %q", name)
	}
}

// Decay applies one decay pass to heat under the given strategy.
// factor is a Scale-denominated fixed-point multiplier used by
// DecayExponential. amount is a plain subtrahend used by DecayLinear.
// lastAccessUnix and nowUnix are wall-clock seconds since epoch, used
// by DecayTimeBased. DecayNone returns h unchanged.
func Decay(strategy DecayStrategy, h int, factor int, amount int, lastAccessUnix, nowUnix int64) int {
	switch strategy {
	case DecayNone:
		return h

	case DecayExponential:
		return h * factor / Scale

	case DecayLinear:
		h -= amount
		if h < 0 {
			return 0
		}
		return h

	case DecayTimeBased:
		elapsed := nowUnix - lastAccessUnix
		if elapsed < 0 {
			elapsed = 0
		}
		hoursSinceAccess := elapsed / 3600
		return Max / (1 + int(hoursSinceAccess))

	default:
		return h
	}
}

// ShouldDecay reports whether enough time has passed since the last
// decay pass for another one to run. Two calls to ShouldDecay (and
// the decay pass they may trigger) within the same interval are
// expected to coalesce to one run — callers achieve that by stamping
// lastDecayUnix at the start of a run, before the pass itself
// executes, not at the end.
func ShouldDecay(lastDecayUnix, nowUnix, intervalSeconds int64) bool {
	return nowUnix-lastDecayUnix >= intervalSeconds
}

// ReorgTrigger selects the predicate that decides when a
// reorganization pass should fire.
type ReorgTrigger uint8

const (
	ReorgManual ReorgTrigger = iota
	ReorgEveryNOps
	ReorgPeriodic
	ReorgAdaptive
)

func (t ReorgTrigger) String() string {
	switch t {
	case ReorgManual:
		return "manual"
	case ReorgEveryNOps:
		return "every_n_ops"
	case ReorgPeriodic:
		return "periodic"
	case ReorgAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseReorgTrigger parses a reorg trigger from its string
// representation.
func ParseReorgTrigger(name string) (ReorgTrigger, error) {
	switch name {
	case "manual":
		return ReorgManual, nil
	case "every_n_ops":
		return ReorgEveryNOps, nil
	case "periodic":
		return ReorgPeriodic, nil
	case "adaptive":
		return ReorgAdaptive, nil
	default:
		return 0, fmt.Errorf("heat: unknown reorg trigger %q", name)
	}
}

// ShouldReorganize evaluates the configured trigger predicate.
// threshold is the EVERY_N_OPS op count, the PERIODIC time_threshold
// in seconds, or the ADAPTIVE change_threshold (a Scale-denominated
// fraction), depending on trigger. metadataCount is the number of
// tracked nodes (inline and/or chunk, per caller's choice of scope);
// ADAPTIVE is false when metadataCount is zero.
func ShouldReorganize(trigger ReorgTrigger, opsSinceReorg int64, threshold int64, lastReorgUnix, nowUnix int64, metadataCount int) bool {
	switch trigger {
	case ReorgManual:
		return false

	case ReorgEveryNOps:
		return opsSinceReorg >= threshold

	case ReorgPeriodic:
		return nowUnix-lastReorgUnix >= threshold

	case ReorgAdaptive:
		if metadataCount == 0 {
			return false
		}
		return opsSinceReorg*Scale/int64(metadataCount) >= threshold

	default:
		return false
	}
}
