package redemption

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceNotDetermined is returned when the catalog knows the content but has no price for it
	ErrPriceNotDetermined = errors.New("could not determine price")

	// ErrPolicyNotRedeemable is returned when redeeming against an inactive or retired policy
	ErrPolicyNotRedeemable = errors.New("policy is not active")

	// ErrNotRedeemable is matched by NotRedeemableError
	ErrNotRedeemable = errors.New("content is not redeemable")
)

// PriceError reports a content key whose price is missing upstream.
type PriceError struct {
	ContentKey string
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("Could not determine price for content_key: %s", e.ContentKey)
}

func (e *PriceError) Unwrap() error {
	return ErrPriceNotDetermined
}

// NotRedeemableError carries the reasons a redemption was refused.
type NotRedeemableError struct {
	ContentKey string
	Reasons    []Reason
}

func (e *NotRedeemableError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("%s is not redeemable", e.ContentKey)
	}
	return fmt.Sprintf("%s is not redeemable: %s", e.ContentKey, e.Reasons[0].Code)
}

func (e *NotRedeemableError) Unwrap() error {
	return ErrNotRedeemable
}
