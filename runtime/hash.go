package runtime

import "hash/fnv"

// fnvHashString computes the stable, process-independent hash used for
// struct/enum type hashes and method-name hashes embedded directly
// into compiled opcodes. Those hashes must reproduce identically
// across runs of the same program, unlike DictKey's maphash.Hash
// (seeded per-process on purpose, see dictkey.go) — so this is
// hash/fnv rather than the seeded hasher dict keys use.
func fnvHashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
