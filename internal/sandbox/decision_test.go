package sandbox

import "testing"

func TestDecide_PolicyNeverNeverPrompts(t *testing.T) {
	// Zero approval prompts when policy=Never, even when escalate_on_failure
	// is true, per spec.md §8's boundary behavior.
	d := Decide(PolicyNever, PreferenceAuto, true, OutcomeNone, true, false)
	if d.NeedsApproval {
		t.Fatalf("PolicyNever must never prompt, got NeedsApproval=true")
	}
	if d.Denied {
		t.Fatalf("first attempt under PolicyNever must not be pre-denied")
	}
}

func TestDecide_PolicyNeverDeniesRetryAfterSandboxDenial(t *testing.T) {
	d := Decide(PolicyNever, PreferenceAuto, true, OutcomeSandboxDenied, false, false)
	if !d.Denied {
		t.Fatalf("PolicyNever must deny any retry after SandboxDenied")
	}
	if d.NeedsApproval {
		t.Fatalf("a denied decision must not also request approval")
	}
}

func TestDecide_FirstAttemptPromptsOnlyWhenWantedAndUncached(t *testing.T) {
	cases := []struct {
		name          string
		wantsApproval bool
		cached        bool
		wantApproval  bool
	}{
		{"wants and uncached prompts", true, false, true},
		{"wants but cached does not prompt", true, true, false},
		{"does not want never prompts", false, false, false},
		{"does not want ignores cache", false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(PolicyOnRequest, PreferenceAuto, true, OutcomeNone, tc.wantsApproval, tc.cached)
			if d.NeedsApproval != tc.wantApproval {
				t.Errorf("NeedsApproval = %v, want %v", d.NeedsApproval, tc.wantApproval)
			}
			if d.Denied {
				t.Errorf("first attempt must never be pre-denied")
			}
		})
	}
}

func TestDecide_RetryAfterSandboxDeniedEscalates(t *testing.T) {
	// ∀ first-attempt SandboxDenied, iff escalate_on_failure and policy≠Never
	// and approval is granted, a second attempt runs under the escalated
	// tier (spec.md §8's universally quantified property).
	for _, policy := range []Policy{PolicyOnFailure, PolicyOnRequest, PolicyUntrusted} {
		d := Decide(policy, PreferenceForceOn, true, OutcomeSandboxDenied, false, false)
		if d.Denied {
			t.Fatalf("%s: expected a retry decision, got Denied", policy)
		}
		if !d.NeedsApproval {
			t.Fatalf("%s: retry after SandboxDenied must request approval", policy)
		}
		if d.RetryReason == "" {
			t.Fatalf("%s: retry decision must carry a non-empty RetryReason", policy)
		}
		if d.Tier != TierUnrestricted {
			t.Fatalf("%s: escalating from Restricted should reach Unrestricted, got %v", policy, d.Tier)
		}
	}
}

func TestDecide_RetryWithoutEscalationDenies(t *testing.T) {
	d := Decide(PolicyOnRequest, PreferenceAuto, false, OutcomeSandboxDenied, false, false)
	if !d.Denied {
		t.Fatalf("escalate_on_failure=false after SandboxDenied must deny the retry")
	}
}

func TestDecide_OtherFailureNeverEscalates(t *testing.T) {
	d := Decide(PolicyOnRequest, PreferenceAuto, true, OutcomeOtherFailure, false, false)
	if !d.Denied {
		t.Fatalf("OutcomeOtherFailure must never escalate")
	}
}

func TestDecide_PreferredTierByPreference(t *testing.T) {
	cases := []struct {
		pref Preference
		want Tier
	}{
		{PreferenceAuto, TierRestricted},
		{PreferenceForceOn, TierRestricted},
		{PreferenceNone, TierUnrestricted},
	}
	for _, tc := range cases {
		d := Decide(PolicyOnRequest, tc.pref, true, OutcomeNone, false, false)
		if d.Tier != tc.want {
			t.Errorf("preference %q: tier = %v, want %v", tc.pref, d.Tier, tc.want)
		}
	}
}

func TestDecide_TieBreakRetryApprovalWinsOverFirstAttempt(t *testing.T) {
	// A call with prior=OutcomeSandboxDenied never re-enters the
	// first-attempt branch, so only the retry approval rule fires even
	// though wantsNoSandboxApproval is also set.
	d := Decide(PolicyOnRequest, PreferenceAuto, true, OutcomeSandboxDenied, true, true)
	if d.RetryReason == "" {
		t.Fatalf("expected the retry rule to fire, got a first-attempt-shaped decision: %+v", d)
	}
}
