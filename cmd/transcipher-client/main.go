// Command transcipher-client prepares workloads and reads results.
//
//	transcipher-client gen -seed S      writes the AES key, the encrypted db block and expected outputs
//	transcipher-client decrypt          decrypts a result bit list into uint16 values, one per line
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/luxfi/transcipher"
	"github.com/luxfi/transcipher/internal/harness"
	"github.com/luxfi/transcipher/internal/storage"
)

// Expected output artifacts written by gen.
const (
	ExpectedValuesName      = "expected_values.txt"
	ExpectedMaxName         = "expected_max.txt"
	ExpectedXORHalvesName   = "expected_xor_halves.txt"
	ExpectedXORConstantName = "expected_xor_constant.txt"
	ExpectedInnerName       = "expected_inner_product.txt"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "gen":
		err = gen(os.Args[2:])
	case "decrypt":
		err = decrypt(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s gen|decrypt [flags]\n", os.Args[0])
	os.Exit(2)
}

func openStorage(fs *flag.FlagSet, args []string) (transcipher.Size, *storage.FileStorage, error) {
	sizeTag := fs.String("size", "toy", "parameter size: toy, small or medium")
	storagePath := fs.String("storage", "/tmp/transcipher", "artifact storage path")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	size, err := transcipher.ParseSize(*sizeTag)
	if err != nil {
		return "", nil, err
	}
	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return "", nil, fmt.Errorf("create storage: %w", err)
	}
	return size, store, nil
}

func gen(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	seed := fs.String("seed", "transcipher", "dataset seed")
	size, store, err := openStorage(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := harness.Generate([]byte(*seed))
	if err != nil {
		return err
	}

	log.Printf("Generated dataset for seed %q", *seed)
	log.Printf("  DB: %v", ds.DB)
	log.Printf("  Max: %d", ds.Expect.Max)

	ctx := context.Background()
	for name, text := range map[string]string{
		storage.AESKeyName:      fmt.Sprintf("%x\n", ds.Key),
		storage.BlockName:       fmt.Sprintf("%x\n", ds.Block),
		ExpectedValuesName:      harness.FormatLines(ds.Expect.Values[:]),
		ExpectedMaxName:         harness.FormatLines([]uint16{ds.Expect.Max}),
		ExpectedXORHalvesName:   harness.FormatLines(ds.Expect.XORHalves[:]),
		ExpectedXORConstantName: harness.FormatLines(ds.Expect.XORConstant[:]),
		ExpectedInnerName:       strconv.Itoa(int(ds.Expect.InnerProduct)) + "\n",
	} {
		key := storage.Key{Size: string(size), Name: name}
		if err := store.Store(ctx, key, []byte(text)); err != nil {
			return err
		}
		log.Printf("Wrote %s", store.Path(key))
	}
	return nil
}

func decrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	in := fs.String("in", storage.ResultName, "result artifact name")
	verbose := fs.Bool("v", false, "log the noise of every bit")
	size, store, err := openStorage(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	params, err := transcipher.NewParametersForSize(size)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sk := new(transcipher.SecretKey)
	if err := storage.LoadBinary(ctx, store, storage.Key{Size: string(size), Name: storage.SecretKeyName}, sk); err != nil {
		return fmt.Errorf("load secret key: %w", err)
	}
	var bits transcipher.BitList
	if err := storage.LoadBinary(ctx, store, storage.Key{Size: string(size), Name: *in}, &bits); err != nil {
		return fmt.Errorf("load result: %w", err)
	}

	dec := transcipher.NewDecryptor(params, sk)
	if *verbose {
		for i, ct := range bits {
			log.Printf("bit %3d: noise 2^%.1f", i, transcipher.NoiseBits(dec.Phase(ct), params.Q()))
		}
	}

	values, err := harness.DecodeUint16s(dec.DecryptBits(bits))
	if err != nil {
		return err
	}
	fmt.Print(harness.FormatLines(values))
	return nil
}
