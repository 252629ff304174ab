package billing

import "errors"

var (
	// ErrEmptyVersions is returned when a version history has no entries.
	ErrEmptyVersions = errors.New("billing: empty version history")
	// ErrNoMatchingVersion is returned when no version is effective at the reference date.
	ErrNoMatchingVersion = errors.New("billing: no version effective at date")
	// ErrInvalidEventInterval is returned when an event does not end after it starts.
	ErrInvalidEventInterval = errors.New("billing: event end must be after start")
	// ErrInvalidPeriod is returned when a billing period is malformed.
	ErrInvalidPeriod = errors.New("billing: invalid billing period")
	// ErrInvalidClockTime is returned when a clock time cannot be parsed.
	ErrInvalidClockTime = errors.New("billing: invalid clock time")
	// ErrInvalidPercentage is returned for negative surcharge percentages.
	ErrInvalidPercentage = errors.New("billing: invalid surcharge percentage")
	// ErrEmptySurchargeWindow is returned when a window starts and ends at the same time.
	ErrEmptySurchargeWindow = errors.New("billing: empty surcharge window")
	// ErrOverlappingSurchargeWindows is returned when two windows of a surcharge overlap.
	ErrOverlappingSurchargeWindows = errors.New("billing: overlapping surcharge windows")
	// ErrMissingCustomer is returned when an event references an unknown customer.
	ErrMissingCustomer = errors.New("billing: customer not found")
	// ErrMissingSubscription is returned when an event references an unknown subscription.
	ErrMissingSubscription = errors.New("billing: subscription not found")
	// ErrMissingService is returned when a subscription references an unknown service.
	ErrMissingService = errors.New("billing: service not found")
	// ErrUnknownFundingNature is returned for fundings that are neither hourly nor fixed.
	ErrUnknownFundingNature = errors.New("billing: unknown funding nature")
	// ErrBillNotFound is returned when a committed bill does not exist.
	ErrBillNotFound = errors.New("billing: bill not found")
	// ErrNothingToCommit is returned when a commit request carries no draft bill.
	ErrNothingToCommit = errors.New("billing: nothing to commit")
)
