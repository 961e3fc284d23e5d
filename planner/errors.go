package planner

import "errors"

var (
	// ErrStoreRequired is returned when a state store is not provided.
	ErrStoreRequired = errors.New("state store required")

	// ErrInvalidPackageSize is returned for a package size below one.
	ErrInvalidPackageSize = errors.New("package size must be positive")

	// ErrInvalidPackages is returned for a package count below one.
	ErrInvalidPackages = errors.New("package count must be positive")

	// ErrPlanNotFound is returned when a requested plan is absent remotely.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidPlan is returned when a plan document cannot be decoded.
	ErrInvalidPlan = errors.New("invalid plan document")

	// ErrPublisherRequired is returned when publishing without an object store.
	ErrPublisherRequired = errors.New("object store required to publish plans")
)
