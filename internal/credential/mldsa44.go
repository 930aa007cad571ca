package credential

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/certen/kernel/internal/kernerr"
)

// The ML-DSA-44 suite tag is served by a hash-based,
// Winternitz-OTS-over-a-Merkle-tree construction — the only
// post-quantum signature primitive available without a
// lattice-signature library in the dependency set. Security rests on
// SHA-256 pre-image resistance rather than a module-lattice problem,
// so this is a stand-in for the named suite, not a FIPS 204
// implementation; see DESIGN.md. Adapted from the XMSS/Winternitz
// construction in the pqc reference package, with two changes: SHA-256
// in place of Keccak256 (this kernel has no go-ethereum dependency on
// the PQ signing path), and a message-derived leaf index in place of
// a mutable per-key usage counter, since this suite's private key is
// passed as a stateless byte string rather than a tracked object.

const (
	mldsaTreeHeight = 10 // 2^10 = 1024 OTS leaves
	mldsaW          = 16
	mldsaChainLen   = 67 // ceil(256/log2(16)) + checksum digits, w=16

	mldsaSeedSize      = 32
	mldsaPublicKeySize = 32
	// signature = leaf_index(4) || auth_path(height*32) || ots(chainLen*32)
	mldsaSignatureSize = 4 + mldsaTreeHeight*32 + mldsaChainLen*32
)

func mldsaLeafCount() int { return 1 << mldsaTreeHeight }

func mldsaDeriveOTSChains(seed []byte, leafIndex uint32) [][32]byte {
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], leafIndex)
	h := sha256.New()
	h.Write(seed)
	h.Write(idxBuf[:])
	h.Write([]byte("certen-mldsa44-ots-leaf"))
	leafSeed := h.Sum(nil)

	chains := make([][32]byte, mldsaChainLen)
	for i := 0; i < mldsaChainLen; i++ {
		var iBuf [4]byte
		binary.BigEndian.PutUint32(iBuf[:], uint32(i))
		chains[i] = sha256.Sum256(append(append([]byte{}, leafSeed...), iBuf[:]...))
	}
	return chains
}

func mldsaChainHash(v [32]byte, steps int) [32]byte {
	for i := 0; i < steps; i++ {
		v = sha256.Sum256(v[:])
	}
	return v
}

func mldsaOTSPublicFromPriv(chains [][32]byte) [][32]byte {
	pub := make([][32]byte, len(chains))
	for i, c := range chains {
		pub[i] = mldsaChainHash(c, mldsaW-1)
	}
	return pub
}

func mldsaLeafHash(pub [][32]byte) [32]byte {
	h := sha256.New()
	for _, p := range pub {
		h.Write(p[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func mldsaPairHash(l, r [32]byte) [32]byte {
	h := sha256.New()
	h.Write(l[:])
	h.Write(r[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// mldsaBuildTree returns every level of the OTS-leaf Merkle tree,
// level 0 being the leaves and the last level the single root.
func mldsaBuildTree(seed []byte) [][][32]byte {
	n := mldsaLeafCount()
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		chains := mldsaDeriveOTSChains(seed, uint32(i))
		leaves[i] = mldsaLeafHash(mldsaOTSPublicFromPriv(chains))
	}
	levels := [][][32]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][32]byte, len(current)/2)
		for i := range next {
			next[i] = mldsaPairHash(current[2*i], current[2*i+1])
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

// mldsaMessageDigits converts msgHash into chainLen Winternitz digits
// including the trailing checksum digits, base mldsaW.
func mldsaMessageDigits(msgHash [32]byte) []int {
	digits := make([]int, 0, mldsaChainLen)
	for _, b := range msgHash {
		digits = append(digits, int(b>>4), int(b&0x0f))
	}
	checksum := 0
	for _, d := range digits {
		checksum += (mldsaW - 1) - d
	}
	numChecksumDigits := mldsaChainLen - len(digits)
	for i := numChecksumDigits - 1; i >= 0; i-- {
		digits = append(digits, checksum%mldsaW)
		checksum /= mldsaW
	}
	return digits
}

// mldsaLeafIndexFor derives a deterministic leaf index from the seed
// and message, so Sign needs no mutable usage-counter state.
func mldsaLeafIndexFor(seed, message []byte) uint32 {
	h := sha256.New()
	h.Write(seed)
	h.Write(message)
	h.Write([]byte("certen-mldsa44-leaf-select"))
	digest := h.Sum(nil)
	return binary.BigEndian.Uint32(digest[:4]) % uint32(mldsaLeafCount())
}

// PublicKeyForMLDSA44Seed derives the 32-byte public key (Merkle
// root) for a 32-byte private seed.
func PublicKeyForMLDSA44Seed(seed []byte) ([]byte, error) {
	if len(seed) != mldsaSeedSize {
		return nil, kernerr.New(kernerr.KindInvalid, "mldsa44: wrong seed size")
	}
	levels := mldsaBuildTree(seed)
	root := levels[len(levels)-1][0]
	return root[:], nil
}

func signMLDSA44(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != mldsaSeedSize {
		return nil, kernerr.New(kernerr.KindInvalid, "mldsa44: wrong private key size")
	}
	msgHash := sha256.Sum256(message)
	leafIndex := mldsaLeafIndexFor(privateKey, message)

	chains := mldsaDeriveOTSChains(privateKey, leafIndex)
	digits := mldsaMessageDigits(msgHash)
	ots := make([][32]byte, mldsaChainLen)
	for i, c := range chains {
		ots[i] = mldsaChainHash(c, digits[i])
	}

	levels := mldsaBuildTree(privateKey)
	authPath := make([][32]byte, mldsaTreeHeight)
	idx := int(leafIndex)
	for level := 0; level < mldsaTreeHeight; level++ {
		nodes := levels[level]
		if idx%2 == 0 {
			authPath[level] = nodes[idx+1]
		} else {
			authPath[level] = nodes[idx-1]
		}
		idx /= 2
	}

	out := make([]byte, 0, mldsaSignatureSize)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], leafIndex)
	out = append(out, idxBuf[:]...)
	for _, n := range authPath {
		out = append(out, n[:]...)
	}
	for _, n := range ots {
		out = append(out, n[:]...)
	}
	return out, nil
}

func verifyMLDSA44(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != mldsaPublicKeySize {
		return false, kernerr.New(kernerr.KindInvalid, "mldsa44: wrong public key size")
	}
	if len(signature) != mldsaSignatureSize {
		return false, kernerr.New(kernerr.KindInvalid, "mldsa44: wrong signature size")
	}

	leafIndex := binary.BigEndian.Uint32(signature[:4])
	if leafIndex >= uint32(mldsaLeafCount()) {
		return false, nil
	}
	rest := signature[4:]

	authPath := make([][32]byte, mldsaTreeHeight)
	for i := 0; i < mldsaTreeHeight; i++ {
		copy(authPath[i][:], rest[i*32:(i+1)*32])
	}
	otsOffset := mldsaTreeHeight * 32
	ots := make([][32]byte, mldsaChainLen)
	for i := 0; i < mldsaChainLen; i++ {
		copy(ots[i][:], rest[otsOffset+i*32:otsOffset+(i+1)*32])
	}

	msgHash := sha256.Sum256(message)
	digits := mldsaMessageDigits(msgHash)

	recoveredPub := make([][32]byte, mldsaChainLen)
	for i, chainSig := range ots {
		remaining := mldsaW - 1 - digits[i]
		recoveredPub[i] = mldsaChainHash(chainSig, remaining)
	}
	leaf := mldsaLeafHash(recoveredPub)

	computed := leaf
	idx := leafIndex
	for _, sibling := range authPath {
		if idx%2 == 0 {
			computed = mldsaPairHash(computed, sibling)
		} else {
			computed = mldsaPairHash(sibling, computed)
		}
		idx /= 2
	}

	var want [32]byte
	copy(want[:], publicKey)
	return computed == want, nil
}
