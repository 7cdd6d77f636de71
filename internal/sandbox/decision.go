package sandbox

// Decision is the outcome of consulting the decision table for one attempt.
type Decision struct {
	Tier          Tier
	NeedsApproval bool
	RetryReason   string // non-empty only when this decision is a post-denial retry
	Denied        bool   // true when policy=Never forbids any retry after SandboxDenied
}

// Decide implements spec.md §4.2's four ordered rules plus the tie-break.
//
// wantsNoSandboxApproval reports whether the handler wants to prompt for
// approval even when running unrestricted (some handlers, e.g. shell-exec
// under Untrusted policy, always want a human in the loop on the first
// attempt). cached reports whether an approval for this invocation's key is
// already on record (so rule 2's "no cached approval exists" condition can
// be evaluated by the caller without this package knowing about the cache).
func Decide(policy Policy, preference Preference, escalateOnFailure bool, prior AttemptOutcome, wantsNoSandboxApproval bool, cached bool) Decision {
	tier := preferredTier(preference)

	// Rule 1: policy=Never never prompts, and never escalates past a denial.
	if policy == PolicyNever {
		if prior == OutcomeSandboxDenied {
			return Decision{Tier: tier, Denied: true}
		}
		return Decision{Tier: tier}
	}

	// Rule 3: retry after a sandbox denial, if escalation is enabled and the
	// policy permits retries at all. This is evaluated before rule 2's
	// first-attempt approval so the tie-break ("retry approval wins when
	// both would fire") falls out naturally: a prior==OutcomeSandboxDenied
	// call never re-enters the first-attempt branch below.
	if prior == OutcomeSandboxDenied {
		if !escalateOnFailure {
			return Decision{Tier: tier, Denied: true}
		}
		switch policy {
		case PolicyOnFailure, PolicyOnRequest, PolicyUntrusted:
			return Decision{
				Tier:          escalatedTier(tier),
				NeedsApproval: true,
				RetryReason:   "sandbox denied the first attempt",
			}
		default:
			return Decision{Tier: tier, Denied: true}
		}
	}

	// Rule 4: any other non-zero outcome never escalates.
	if prior == OutcomeOtherFailure {
		return Decision{Tier: tier, Denied: true}
	}

	// Rule 2: first attempt, tier=preferred; prompt only if the handler
	// wants no-sandbox approval and nothing is cached yet.
	needsApproval := wantsNoSandboxApproval && !cached
	return Decision{Tier: tier, NeedsApproval: needsApproval}
}

func preferredTier(pref Preference) Tier {
	switch pref {
	case PreferenceForceOn:
		return TierRestricted
	case PreferenceNone:
		return TierUnrestricted
	default: // Auto
		return TierRestricted
	}
}

func escalatedTier(prior Tier) Tier {
	if prior == TierRestricted {
		return TierUnrestricted
	}
	return TierRestricted
}
