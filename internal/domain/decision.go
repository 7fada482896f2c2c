// Package domain contains core business types and interfaces.
//
// This file defines the Decision type returned by the guardrail enforcer.
// Policy denials are values, not errors, so callers cannot swallow them with
// generic error handling; each denial carries a machine-readable code plus a
// human-readable message suitable for upgrade prompts.
package domain

import (
	"fmt"
	"net/http"
)

// DecisionCode identifies the outcome of an authorization check.
type DecisionCode string

const (
	DecisionAllowed          DecisionCode = "allowed"
	DecisionQuotaExceeded    DecisionCode = "quota_exceeded"
	DecisionFeatureNotInPlan DecisionCode = "feature_not_in_plan"
	DecisionTrialExpired     DecisionCode = "trial_expired"
	DecisionInactiveAccount  DecisionCode = "inactive_account"
)

// Decision is the result of asking whether a tenant may perform a metered
// operation right now. A Decision is a non-binding reservation: callers must
// still call RecordSuccess only after the guarded operation completed.
type Decision struct {
	Code    DecisionCode `json:"code"`
	Message string       `json:"message"`

	// Limit and Current are set for quota_exceeded decisions.
	Limit   int64 `json:"limit,omitempty"`
	Current int64 `json:"current,omitempty"`

	// RequiredFeature is set for feature_not_in_plan decisions.
	RequiredFeature FeatureKind `json:"required_feature,omitempty"`
}

// Allowed reports whether the decision permits the operation.
func (d Decision) Allowed() bool {
	return d.Code == DecisionAllowed
}

// HTTPStatus maps the decision to the status code surfaced to callers.
func (d Decision) HTTPStatus() int {
	switch d.Code {
	case DecisionAllowed:
		return http.StatusOK
	case DecisionQuotaExceeded:
		return http.StatusPaymentRequired
	case DecisionFeatureNotInPlan, DecisionTrialExpired:
		return http.StatusForbidden
	case DecisionInactiveAccount:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Allow builds an allowed decision.
func Allow() Decision {
	return Decision{Code: DecisionAllowed, Message: "OK"}
}

// DenyQuotaExceeded builds a denial for an exhausted monthly quota.
func DenyQuotaExceeded(kind ResourceKind, limit, current int64) Decision {
	return Decision{
		Code:    DecisionQuotaExceeded,
		Limit:   limit,
		Current: current,
		Message: fmt.Sprintf("Monthly limit of %d %s reached (%d used). Upgrade your plan or wait for the next billing cycle.", limit, kind, current),
	}
}

// DenyFeatureNotInPlan builds a denial for a feature missing from the plan.
func DenyFeatureNotInPlan(tier PlanTier, feature FeatureKind) Decision {
	return Decision{
		Code:            DecisionFeatureNotInPlan,
		RequiredFeature: feature,
		Message:         fmt.Sprintf("Feature %s is not available on the %s plan.", feature, tier),
	}
}

// DenyTrialExpired builds a denial for an expired free trial.
func DenyTrialExpired() Decision {
	return Decision{
		Code:    DecisionTrialExpired,
		Message: "Your free trial has expired. Upgrade to keep using the service.",
	}
}

// DenyInactiveAccount builds a denial for a deactivated account.
func DenyInactiveAccount() Decision {
	return Decision{
		Code:    DecisionInactiveAccount,
		Message: "This account is inactive.",
	}
}
