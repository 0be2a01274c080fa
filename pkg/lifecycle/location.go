package lifecycle

import "github.com/3leaps/bucketwarden/pkg/provider/s3"

// LocationConstraintFor returns the location constraint to send when
// creating a bucket in region. The default region takes no constraint:
// S3 rejects an explicit us-east-1 constraint.
func LocationConstraintFor(region string) (string, bool) {
	if region == "" || region == s3.DefaultAWSRegion {
		return "", false
	}
	return region, true
}
