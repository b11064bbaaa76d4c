package state

import (
	"encoding/binary"
	"strings"
)

var (
	administratorKey        = []byte("config/administrator")
	platformFeeKey          = []byte("config/platform-fee-percent")
	platformFeesRetainedKey = []byte("config/platform-fees-retained")
	modulePausePrefix       = []byte("config/paused/")
	registryEntryPrefix     = []byte("registry/entry/")
	registrySlotPrefix      = []byte("registry/slot/")
	registryLengthKey       = []byte("registry/length")
	matchPrefix             = []byte("escrow/match/")
	matchCustodyPrefix      = []byte("escrow/custody/")
	nextMatchIDKey          = []byte("escrow/next-match-id")
	reentrancyKey           = []byte("escrow/reentrancy-guard")
	balancePrefix           = []byte("bank/balance/")
	eventSequenceKey        = []byte("events/next-sequence")
)

func withSuffix(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func uint64Key(prefix []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return withSuffix(prefix, buf[:])
}

func modulePauseKey(module string) []byte {
	return withSuffix(modulePausePrefix, []byte(strings.ToLower(strings.TrimSpace(module))))
}
