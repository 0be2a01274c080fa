package lifecycle

import (
	"context"

	"github.com/3leaps/bucketwarden/pkg/provider"
)

// BucketState is what this account can observe about a bucket name.
type BucketState int

const (
	// StateAbsent means no bucket with the name exists.
	StateAbsent BucketState = iota

	// StatePresent means the bucket exists and is visible to this account.
	StatePresent

	// StateForbidden means the backend refused to answer. The name is
	// either owned by another account or hidden by policy.
	StateForbidden
)

// String returns the state name.
func (s BucketState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateForbidden:
		return "forbidden"
	}
	return "unknown"
}

// BucketLookup is the result of a single bucket lookup.
//
// Region is set only for StatePresent and is authoritative until the next
// lookup; it is never cached.
type BucketLookup struct {
	Name   string
	State  BucketState
	Region string
}

// LookupBucket resolves the state of a bucket name and, when the bucket is
// visible, its region.
func (m *Manager) LookupBucket(ctx context.Context, name string) (BucketLookup, error) {
	return m.lookup(ctx, "LookupBucket", name, true)
}

// BucketRegion returns the region of a visible bucket.
// A missing or forbidden bucket is reported as a *BackendError.
func (m *Manager) BucketRegion(ctx context.Context, name string) (string, error) {
	region, err := m.backend.BucketLocation(ctx, name)
	if err != nil {
		return "", &BackendError{Op: "BucketRegion", Bucket: name, Err: err}
	}
	return region, nil
}

// lookup heads the bucket and optionally resolves its location.
// Forbidden and not-found responses become states; anything else is a
// *BackendError tagged with op.
func (m *Manager) lookup(ctx context.Context, op, name string, withRegion bool) (BucketLookup, error) {
	res := BucketLookup{Name: name}

	err := m.backend.HeadBucket(ctx, name)
	switch {
	case err == nil:
		res.State = StatePresent
	case provider.IsAccessDenied(err):
		res.State = StateForbidden
		return res, nil
	case provider.IsBucketNotFound(err), provider.IsNotFound(err):
		res.State = StateAbsent
		return res, nil
	default:
		return res, &BackendError{Op: op, Bucket: name, Err: err}
	}

	if !withRegion {
		return res, nil
	}

	region, err := m.backend.BucketLocation(ctx, name)
	switch {
	case err == nil:
		res.Region = region
	case provider.IsBucketNotFound(err):
		// Deleted between the two calls.
		res.State = StateAbsent
	case provider.IsAccessDenied(err):
		res.State = StateForbidden
	default:
		return res, &BackendError{Op: op, Bucket: name, Err: err}
	}
	return res, nil
}
