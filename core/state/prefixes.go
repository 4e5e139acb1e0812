package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	distributorPrefix  = []byte("distributor/record/")
	claimStatusPrefix  = []byte("distributor/claim/")
	balancePrefix      = []byte("balance/")
	distributorListKey = ethcrypto.Keccak256([]byte("distributor/list"))
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func distributorKey(id [32]byte) []byte {
	return prefixedKey(distributorPrefix, id[:])
}

// claimStatusKey is keyed by the derived claim identity so that one record
// exists per (claimant, distributor).
func claimStatusKey(claimID [32]byte) []byte {
	return prefixedKey(claimStatusPrefix, claimID[:])
}

func balanceKey(mint, owner [20]byte) []byte {
	return prefixedKey(balancePrefix, mint[:], owner[:])
}
