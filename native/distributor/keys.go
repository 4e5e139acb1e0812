package distributor

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	distributorSeed = []byte("MerkleDistributor")
	claimStatusSeed = []byte("ClaimStatus")
	vaultSeed       = []byte("DistributorVault")
)

// DistributorID derives the identity of the distributor for (mint, version).
func DistributorID(mint [20]byte, version uint64) [32]byte {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], version)
	return ethcrypto.Keccak256Hash(distributorSeed, mint[:], v[:])
}

// ClaimStatusID derives the identity of the claim record of claimant. The
// state layer creates at most one record per identity.
func ClaimStatusID(claimant [20]byte, distributor [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(claimStatusSeed, claimant[:], distributor[:])
}

// DefaultVault derives the vault owner address of a distributor. No key
// controls it; only the engine moves its balance.
func DefaultVault(distributor [32]byte) [20]byte {
	digest := ethcrypto.Keccak256(vaultSeed, distributor[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}
