// Command transcipher-keygen generates the keys of a transciphering session:
// the secret key, the evaluation key and the encrypted AES round tables.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/luxfi/transcipher"
	"github.com/luxfi/transcipher/internal/harness"
	"github.com/luxfi/transcipher/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		sizeTag     = flag.String("size", "toy", "parameter size: toy, small or medium")
		storagePath = flag.String("storage", "/tmp/transcipher", "artifact storage path")
		keyHex      = flag.String("key", "", "AES-128 key in hex (default: stored key, then -seed)")
		seed        = flag.String("seed", "", "derive the AES key from this seed")
		public      = flag.Bool("public", false, "encrypt round tables trivially (insecure, for profiling)")
	)
	flag.Parse()

	size, err := transcipher.ParseSize(*sizeTag)
	if err != nil {
		return err
	}

	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	key, err := aesKey(ctx, store, size, *keyHex, *seed)
	if err != nil {
		return err
	}

	params, err := transcipher.NewParametersForSize(size)
	if err != nil {
		return fmt.Errorf("create parameters: %w", err)
	}

	log.Printf("Transcipher keygen")
	log.Printf("  Size: %s (n=%d, N=%d, logQ=%.0f)", size, params.NLWE(), params.N(), params.GLWE().LogQ())
	log.Printf("  Storage: %s", *storagePath)

	start := time.Now()
	kgen := transcipher.NewKeyGenerator(params)
	sk := kgen.GenSecretKey()
	evk := kgen.GenEvaluationKey(sk)
	log.Printf("Evaluation key generated in %v", time.Since(start))

	start = time.Now()
	var rk *transcipher.RoundKeys
	if *public {
		rk, err = transcipher.GenPublicRoundKeys(params, key)
	} else {
		rk, err = transcipher.GenRoundKeys(params, sk, key)
	}
	if err != nil {
		return fmt.Errorf("round keys: %w", err)
	}
	log.Printf("Round keys generated in %v", time.Since(start))

	for _, a := range []struct {
		name string
		obj  interface{ MarshalBinary() ([]byte, error) }
	}{
		{storage.SecretKeyName, sk},
		{storage.EvaluationKeyName, evk},
		{storage.RoundKeysName, rk},
	} {
		k := storage.Key{Size: string(size), Name: a.name}
		if err := storage.StoreBinary(ctx, store, k, a.obj); err != nil {
			return err
		}
		log.Printf("Wrote %s", store.Path(k))
	}

	k := storage.Key{Size: string(size), Name: storage.AESKeyName}
	if err := store.Store(ctx, k, []byte(hex.EncodeToString(key[:])+"\n")); err != nil {
		return err
	}
	return nil
}

// aesKey picks the AES key from the flag, the stored key or the seed, in that order.
func aesKey(ctx context.Context, store storage.Storage, size transcipher.Size, keyHex, seed string) (key [16]byte, err error) {
	if keyHex == "" {
		data, err := store.Load(ctx, storage.Key{Size: string(size), Name: storage.AESKeyName})
		switch {
		case err == nil:
			keyHex = string(data)
		case errors.Is(err, storage.ErrNotFound) && seed != "":
			return harness.KeyFromSeed([]byte(seed)), nil
		case errors.Is(err, storage.ErrNotFound):
			return key, errors.New("no AES key: pass -key or -seed")
		default:
			return key, err
		}
	}

	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return key, fmt.Errorf("decode AES key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("AES key of %d bytes, want %d", len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}
