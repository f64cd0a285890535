// Package experiment implements deterministic variant assignment and
// shadow execution of candidate pipeline variants.
package experiment

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
)

// bucketSpace is the resolution of hash bucketing.
const bucketSpace = 10000

// FlagResolver assigns experiment arms. Resolution is deterministic:
// the same (flag, user, tenant) against the same config always yields
// the same variant, across process runs.
type FlagResolver struct {
	flags          map[string]config.FlagConfig
	defaultVariant string
}

// NewFlagResolver builds a resolver from the flag configuration.
func NewFlagResolver(flags map[string]config.FlagConfig, defaultVariant string) *FlagResolver {
	return &FlagResolver{flags: flags, defaultVariant: defaultVariant}
}

// Resolve picks the variant for one flag. Priority: tenant override,
// user override, hash bucketing over the weighted arms, flag default.
func (r *FlagResolver) Resolve(flagName, userID, tenantID string) string {
	flag, ok := r.flags[flagName]
	if !ok {
		return r.defaultVariant
	}

	if v, ok := flag.TenantOverrides[tenantID]; ok {
		return v
	}
	if v, ok := flag.UserOverrides[userID]; ok {
		return v
	}

	bucket := hashBucket(userID)
	cumulative := 0.0
	for _, variant := range flag.Variants {
		cumulative += variant.Weight
		if cumulative > bucket {
			return variant.Name
		}
	}

	if flag.Default != "" {
		return flag.Default
	}
	return r.defaultVariant
}

// hashBucket maps a user id to [0,1): first 8 hex chars of MD5, mod
// 10000, divided by 10000.
func hashBucket(userID string) float64 {
	sum := md5.Sum([]byte(userID))
	prefix := hex.EncodeToString(sum[:])[:8]
	n, err := strconv.ParseUint(prefix, 16, 64)
	if err != nil {
		return 0
	}
	return float64(n%bucketSpace) / bucketSpace
}
