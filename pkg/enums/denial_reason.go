package enums

// DenialReason explains why an AI request was refused.
type DenialReason string

const (
	DenialReasonNone         DenialReason = ""
	DenialReasonTrialExpired DenialReason = "TRIAL_EXPIRED"
	DenialReasonLimitReached DenialReason = "LIMIT_REACHED"
)

// String implements fmt.Stringer.
func (r DenialReason) String() string {
	return string(r)
}
