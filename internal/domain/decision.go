package domain

// Reason explains a decision outcome.
type Reason string

const (
	ReasonFlagNotFound      Reason = "flag_not_found"
	ReasonFlagDisabled      Reason = "flag_disabled"
	ReasonConstraintsNotMet Reason = "constraints_not_met"
	ReasonBooleanFlag       Reason = "boolean_flag"
	ReasonRolloutIncluded   Reason = "percentage_rollout_included"
	ReasonRolloutExcluded   Reason = "percentage_rollout_excluded"
	ReasonNoVariantsDefined Reason = "no_variants_defined"
	ReasonZeroTotalWeight   Reason = "zero_total_weight"
	ReasonVariantSelected   Reason = "variant_selected"
	ReasonVariantFallback   Reason = "variant_fallback"
	ReasonUnknownFlagType   Reason = "unknown_flag_type"
	ReasonEvaluationError   Reason = "evaluation_error"
)

// Decision is the per-flag answer returned to clients.
type Decision struct {
	Enabled bool   `json:"enabled"`
	Variant string `json:"variant,omitempty"`
	Reason  Reason `json:"reason"`
}

// Disabled builds a negative decision with the given reason.
func Disabled(reason Reason) Decision {
	return Decision{Enabled: false, Reason: reason}
}

// DecisionRequest asks for decisions on a set of flag keys.
type DecisionRequest struct {
	ClientID        string         `json:"clientId"`
	FlagKeys        []string       `json:"flagKeys"`
	Context         map[string]any `json:"context,omitempty"`
	Environment     string         `json:"environment,omitempty"`
	RecordExposures bool           `json:"recordExposures,omitempty"`
}
