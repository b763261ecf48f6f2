// Command transcipher-server transciphers an AES block under stored keys.
//
// With -addr it serves POST /transcipher; otherwise it processes the block
// given by -block (or the stored block.hex) once and exits.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luxfi/transcipher"
	"github.com/luxfi/transcipher/internal/storage"
	"github.com/luxfi/transcipher/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        = flag.String("addr", "", "HTTP server address (empty: process one block and exit)")
		sizeTag     = flag.String("size", "toy", "parameter size: toy, small or medium")
		storagePath = flag.String("storage", "/tmp/transcipher", "artifact storage path")
		blockHex    = flag.String("block", "", "AES block in hex (default: stored block.hex)")
		workload    = flag.String("workload", "none", "workload: none, xor-halves, xor-constant or max")
		resultName  = flag.String("out", storage.ResultName, "result artifact name")
		workers     = flag.Int("workers", 4, "number of worker goroutines")
	)
	flag.Parse()

	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	srv := server.New(store, server.Config{Workers: *workers})

	log.Printf("Transcipher server starting...")
	log.Printf("  Storage: %s", *storagePath)
	log.Printf("  Workers: %d", *workers)

	if *addr != "" {
		return serve(srv, *addr)
	}

	size, err := transcipher.ParseSize(*sizeTag)
	if err != nil {
		return err
	}
	w, err := transcipher.ParseWorkload(*workload)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	block, err := readBlock(ctx, store, size, *blockHex)
	if err != nil {
		return err
	}

	log.Printf("  Size: %s", size)
	log.Printf("  Workload: %s", w)

	res, err := srv.Process(ctx, server.Request{
		Size:       size,
		Block:      block,
		Workload:   w,
		ResultName: *resultName,
	})
	if err != nil {
		return err
	}
	log.Printf("Stored %d bits in %s (%v)", res.Bits, store.Path(res.Key), res.Duration)
	return nil
}

func readBlock(ctx context.Context, store storage.Storage, size transcipher.Size, blockHex string) ([]byte, error) {
	if blockHex == "" {
		data, err := store.Load(ctx, storage.Key{Size: string(size), Name: storage.BlockName})
		if err != nil {
			return nil, fmt.Errorf("load block: %w", err)
		}
		blockHex = string(data)
	}
	block, err := hex.DecodeString(strings.TrimSpace(blockHex))
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return block, nil
}

func serve(srv *server.Server, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Transcipher server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	log.Println("Shutting down transcipher server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Transcipher server stopped")
	return nil
}
