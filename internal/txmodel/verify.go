package txmodel

import (
	"context"
	"runtime"
	"sync"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// VerifySignature checks the embedded signature proof of tx against
// its canonical sign bytes. It is stateless: it never touches a
// View, so it can run ahead of, or concurrently with, state access.
func VerifySignature(tx *types.ChainTransaction) error {
	ok, err := credential.Verify(tx.SigProof.Suite, tx.SigProof.PublicKey, codec.CanonicalSignBytes(tx), tx.SigProof.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return kernerr.New(kernerr.KindUnauthorizedByCredentials, "signature verification failed")
	}
	return nil
}

// BatchVerifyResult pairs a transaction's index in the input batch
// with the outcome of verifying it.
type BatchVerifyResult struct {
	Index int
	Err   error
}

// BatchVerifySignatures verifies every transaction in txs concurrently
// and returns one result per input, in input order. It stops
// launching new work, but lets already-started checks finish, if ctx
// is canceled.
func BatchVerifySignatures(ctx context.Context, txs []*types.ChainTransaction) []BatchVerifyResult {
	results := make([]BatchVerifyResult, len(txs))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(txs) {
		workers = len(txs)
	}
	if workers < 1 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = BatchVerifyResult{Index: i, Err: VerifySignature(txs[i])}
			}
		}()
	}

	for i := range txs {
		select {
		case <-ctx.Done():
			results[i] = BatchVerifyResult{Index: i, Err: ctx.Err()}
			continue
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
