package hashutil

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	sha256simd "github.com/minio/sha256-simd"
)

// scratchpadWords is the size of the VM's mixing scratchpad, chosen to be
// large enough that it does not fit comfortably in L1/L2 cache, giving the
// hash its memory-hard character without requiring an external VM binding.
const scratchpadWords = 1 << 16 // 512 KiB of uint64 words

// VM is a memory-hard scratchpad hash function. Construction (filling the
// scratchpad from the seed) is the expensive part; CalculateHash is cheap
// relative to it and reuses the scratchpad across calls, matching the
// original's thread-local-VM-initialized-once design.
type VM struct {
	seed       []byte
	scratchpad []uint64
}

var (
	vmRegistryMu sync.Mutex
	vmRegistry   = map[string]*VM{}
)

// NewVM builds a scratchpad VM keyed by seed. Construction mixes the seed
// through the scratchpad once; reused via VMForWorker for repeated hashing.
func NewVM(seed []byte) *VM {
	vm := &VM{seed: append([]byte(nil), seed...), scratchpad: make([]uint64, scratchpadWords)}
	vm.fill()
	return vm
}

func (vm *VM) fill() {
	h := sha256simd.Sum256(vm.seed)
	state := binary.BigEndian.Uint64(h[:8])
	for i := range vm.scratchpad {
		state = state*6364136223846793005 + 1442695040888963407 // 64-bit LCG step
		vm.scratchpad[i] = state
	}
}

// CalculateHash mixes input through the scratchpad and returns a 32-byte
// digest. Deterministic given (vm.seed, input).
func (vm *VM) CalculateHash(input []byte) [32]byte {
	h := sha256simd.Sum256(input)
	acc := binary.BigEndian.Uint64(h[:8])
	for i := 0; i < 256; i++ {
		idx := acc % uint64(len(vm.scratchpad))
		acc ^= vm.scratchpad[idx]
		acc = acc*2685821657736338717 + uint64(i)
	}
	var out [32]byte
	binary.BigEndian.PutUint64(out[0:8], acc)
	mixed := sha256simd.Sum256(append(h[:], out[0:8]...))
	copy(out[:], mixed[:])
	return out
}

// VMForWorker returns the VM instance for workerKey, constructing and
// caching it on first use (the "initialized once, reused" contract from
// spec.md §4.1). HashWithVM, the only caller in this module, always passes
// defaultVMWorkerKey, so all hashing shares one VM.
func VMForWorker(workerKey string, seed []byte) *VM {
	vmRegistryMu.Lock()
	defer vmRegistryMu.Unlock()
	vm, ok := vmRegistry[workerKey]
	if !ok {
		vm = NewVM(seed)
		vmRegistry[workerKey] = vm
	}
	return vm
}

// ResetVMRegistry clears all cached VM instances, used by tests and by
// operators rotating the network seed.
func ResetVMRegistry() {
	vmRegistryMu.Lock()
	defer vmRegistryMu.Unlock()
	vmRegistry = map[string]*VM{}
}

// defaultVMWorkerKey is used by HashWithVM when no explicit worker identity
// is threaded through (e.g. validation of an already-mined hash, which can
// happen on any goroutine).
const defaultVMWorkerKey = "default"

// DefaultVMSeed is the seed HashWithVM keys its VM with. Nothing reads
// NetworkConfig.RandomXSeed, so the network config does not change it.
var DefaultVMSeed = []byte("modality-network-vm-key")

// HashWithVM hashes input with the default-worker VM instance.
func HashWithVM(input string) (string, error) {
	vm := VMForWorker(defaultVMWorkerKey, DefaultVMSeed)
	digest := vm.CalculateHash([]byte(input))
	return hex.EncodeToString(digest[:]), nil
}
