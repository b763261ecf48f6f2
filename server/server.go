// Package server runs transciphering requests against the keys held in an
// artifact store.
//
// A request names a parameter size, an AES block and a workload. The server
// loads the evaluation and round keys of the size once, transciphers the
// block, applies the workload and stores the resulting bit list.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/transcipher"
	"github.com/luxfi/transcipher/internal/storage"
)

// Config holds server configuration
type Config struct {
	// Workers is the size of the worker pool of each evaluator
	Workers int
}

// Request is a transciphering request
type Request struct {
	Size       transcipher.Size
	Block      []byte
	Workload   transcipher.Workload
	ResultName string
}

// Result describes a stored result
type Result struct {
	Key      storage.Key
	Bits     int
	Duration time.Duration
}

// session holds the keys of one parameter size
type session struct {
	eval *transcipher.Evaluator
	rk   *transcipher.RoundKeys
}

// Server processes transciphering requests
type Server struct {
	cfg   Config
	store storage.Storage

	mu       sync.Mutex
	sessions map[transcipher.Size]*session

	requests atomic.Int64
	failures atomic.Int64
}

// New creates a server reading keys from and writing results to store.
func New(store storage.Storage, cfg Config) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: make(map[transcipher.Size]*session),
	}
}

// loadSession returns the cached session of size, loading its keys on first use.
// Sessions are not shared between concurrent requests: each caller gets its
// own shallow copy of the evaluator. Keys are decoded without holding the
// lock, so requests for cached sizes never wait on a load.
func (s *Server) loadSession(ctx context.Context, size transcipher.Size) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[size]
	s.mu.Unlock()
	if ok {
		return &session{eval: sess.eval.ShallowCopy(), rk: sess.rk}, nil
	}

	params, err := transcipher.NewParametersForSize(size)
	if err != nil {
		return nil, err
	}

	evk := new(transcipher.EvaluationKey)
	if err := storage.LoadBinary(ctx, s.store, storage.Key{Size: string(size), Name: storage.EvaluationKeyName}, evk); err != nil {
		return nil, fmt.Errorf("load evaluation key: %w", err)
	}
	rk := new(transcipher.RoundKeys)
	if err := storage.LoadBinary(ctx, s.store, storage.Key{Size: string(size), Name: storage.RoundKeysName}, rk); err != nil {
		return nil, fmt.Errorf("load round keys: %w", err)
	}

	loaded := &session{
		eval: transcipher.NewEvaluator(params, evk).WithWorkers(s.cfg.Workers),
		rk:   rk,
	}

	// Concurrent first requests may both load; the first one stored wins.
	s.mu.Lock()
	if sess, ok = s.sessions[size]; !ok {
		sess = loaded
		s.sessions[size] = sess
	}
	s.mu.Unlock()
	return &session{eval: sess.eval.ShallowCopy(), rk: sess.rk}, nil
}

// Process transciphers req.Block, applies req.Workload and stores the bits.
func (s *Server) Process(ctx context.Context, req Request) (*Result, error) {
	s.requests.Add(1)
	res, err := s.process(ctx, req)
	if err != nil {
		s.failures.Add(1)
	}
	return res, err
}

func (s *Server) process(ctx context.Context, req Request) (*Result, error) {
	if len(req.Block) != 16 {
		return nil, transcipher.ErrInvalidBlock
	}
	if req.ResultName == "" {
		req.ResultName = storage.ResultName
	}

	start := time.Now()
	sess, err := s.loadSession(ctx, req.Size)
	if err != nil {
		return nil, err
	}

	state, err := sess.eval.Transcipher(ctx, req.Block, sess.rk)
	if err != nil {
		return nil, fmt.Errorf("transcipher: %w", err)
	}
	bits, err := sess.eval.RunWorkload(ctx, req.Workload, state.Bits())
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", req.Workload, err)
	}

	key := storage.Key{Size: string(req.Size), Name: req.ResultName}
	if err := storage.StoreBinary(ctx, s.store, key, transcipher.BitList(bits)); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return &Result{Key: key, Bits: len(bits), Duration: time.Since(start)}, nil
}

// Stats returns the number of processed and failed requests
func (s *Server) Stats() (requests, failures int64) {
	return s.requests.Load(), s.failures.Load()
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/transcipher", s.handleTranscipher)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requests, failures := s.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"requests": requests,
		"failures": failures,
	})
}

// TranscipherRequest is the JSON body of POST /transcipher
type TranscipherRequest struct {
	Size       string `json:"size"`
	Block      string `json:"block"`
	Workload   string `json:"workload,omitempty"`
	ResultName string `json:"result_name,omitempty"`
}

// TranscipherResponse is the JSON answer of POST /transcipher
type TranscipherResponse struct {
	Result     string `json:"result"`
	Bits       int    `json:"bits"`
	DurationMS int64  `json:"duration_ms"`
}

// ParseRequest validates a JSON request.
func ParseRequest(body TranscipherRequest) (Request, error) {
	var (
		req Request
		err error
	)
	if req.Size, err = transcipher.ParseSize(body.Size); err != nil {
		return req, err
	}
	if req.Workload, err = transcipher.ParseWorkload(body.Workload); err != nil {
		return req, err
	}
	if req.Block, err = hex.DecodeString(body.Block); err != nil {
		return req, fmt.Errorf("decode block: %w", err)
	}
	if len(req.Block) != 16 {
		return req, transcipher.ErrInvalidBlock
	}
	req.ResultName = body.ResultName
	return req, nil
}

func (s *Server) handleTranscipher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var body TranscipherRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := ParseRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Process(r.Context(), req)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscipherResponse{
		Result:     res.Key.String(),
		Bits:       res.Bits,
		DurationMS: res.Duration.Milliseconds(),
	})
}
