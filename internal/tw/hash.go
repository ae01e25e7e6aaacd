package tw

import "github.com/spaolacci/murmur3"

// shardSeed is the fixed Murmur3-32 seed used for shard distribution.
const shardSeed = 623

// shardFor maps a canonicalized key string to a shard index via
// Murmur3-32(seed=623) mod numShards.
func shardFor(key string, numShards int) int {
	h := murmur3.Sum32WithSeed([]byte(key), shardSeed)
	return int(h % uint32(numShards))
}
