// Package hashing assigns subjects to stable rollout buckets.
//
// A subject's bucket for a flag depends only on the subject id and the flag
// key, so every replica and every cache state yields the same answer.
package hashing

import (
	"github.com/spaolacci/murmur3"
)

// BucketCount is the number of rollout buckets.
const BucketCount = 100

// Hash32 returns the MurmurHash3 x86 32-bit hash (seed 0) of input's UTF-8 bytes.
func Hash32(input string) uint32 {
	return murmur3.Sum32WithSeed([]byte(input), 0)
}

// Bucket maps a subject and flag key to a bucket in [0, BucketCount).
func Bucket(subjectID, flagKey string) int {
	return int(Hash32(subjectID+":"+flagKey) % BucketCount)
}

// InRollout reports whether the subject falls inside a percentage rollout.
// Raising the percentage never removes a subject that was already included.
func InRollout(subjectID, flagKey string, percentage int) bool {
	return Bucket(subjectID, flagKey) < percentage
}

// Weighted is a variant candidate with its relative weight.
type Weighted struct {
	Key    string
	Weight int
}

// TotalWeight sums the non-negative weights of variants.
func TotalWeight(variants []Weighted) int {
	total := 0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	return total
}

// SelectVariant picks a variant by walking cumulative weights in the given
// order. ok is false when there are no variants or the total weight is zero.
// fallback is true when the walk ends without a match and the last variant is
// returned instead.
//
// The bucket is scaled onto the weight range with integer arithmetic, so
// bucket*total < cumulative*BucketCount is the selection test.
func SelectVariant(subjectID, flagKey string, variants []Weighted) (key string, ok bool, fallback bool) {
	total := TotalWeight(variants)
	if len(variants) == 0 || total == 0 {
		return "", false, false
	}

	scaled := Bucket(subjectID, flagKey) * total
	cumulative := 0
	for _, v := range variants {
		if v.Weight > 0 {
			cumulative += v.Weight
		}
		if scaled < cumulative*BucketCount {
			return v.Key, true, false
		}
	}
	return variants[len(variants)-1].Key, true, true
}
