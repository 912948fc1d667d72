package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"blobgate/internal/auth"
	"blobgate/internal/model"
	"blobgate/internal/replay"
	"blobgate/internal/repository"
	"blobgate/internal/rules"
	"blobgate/internal/storage"
)

var (
	// ErrNoProof means auth is required but no proof accompanied the request.
	ErrNoProof = errors.New("missing authorization proof")
	// ErrAuthMissingHash means the caller declared a content hash the proof does not bind.
	ErrAuthMissingHash = errors.New("authorization proof does not bind declared sha256")
	// ErrNoRule means no acceptance rule accepts the declared content type.
	ErrNoRule = errors.New("no acceptance rule matches")
	// ErrPubkeyNotInRule means rule matching demanded the caller's pubkey and no rule lists it.
	ErrPubkeyNotInRule = errors.New("pubkey not accepted by any rule")
	// ErrNotWhitelisted means the caller identity is not on the allow-list.
	ErrNotWhitelisted = errors.New("pubkey is not on the allow-list")
	// ErrHashMismatch means the staged content hashed to something other than the claimed hash.
	ErrHashMismatch = errors.New("incorrect blob sha256")
	// ErrBlobNotFound means no committed blob has the requested hash.
	ErrBlobNotFound = errors.New("blob not found")
)

// AdmitRequest carries an upload's declared properties, before any bytes are read.
type AdmitRequest struct {
	// Proof is the raw authorization proof, empty when the caller sent none.
	Proof string
	// ContentType is the declared MIME type.
	ContentType string
	// ContentLength is the declared size in bytes, 0 when not declared.
	ContentLength int64
	// DeclaredHash is the caller-claimed content hash (x-sha-256), may be empty.
	DeclaredHash string
}

// Admission is the outcome of the admission checks: the verified claims (nil
// when auth is not required) and the acceptance rule that matched. It is
// request-scoped and feeds the staging phase.
type Admission struct {
	Claims       *auth.Claims
	Rule         *rules.Rule
	ContentType  string
	DeclaredHash string
}

// Identity returns the caller's verified identity, or "" without auth.
func (a *Admission) Identity() string {
	if a.Claims == nil {
		return ""
	}
	return a.Claims.Identity()
}

// BlobListResult is the service-level DTO for paginated blob listings.
type BlobListResult struct {
	Items []model.BlobDescriptor `json:"data"`
	Total int                    `json:"total"`
}

// AllowList answers allow-list membership synchronously from a cached snapshot.
type AllowList interface {
	IsMember(pubkey string) bool
}

// UploadService defines the upload admission pipeline use cases.
type UploadService interface {
	// Admit runs the pre-body admission checks: proof verification, replay
	// lookup, rule matching. It is the whole of the HEAD /upload path and the
	// first phase of PUT.
	Admit(ctx context.Context, req AdmitRequest) (*Admission, error)

	// Upload runs the staging/commit phase for an admitted request: allow-list
	// gate, proof reservation, streamed staging with incremental hashing, hash
	// cross-checks, idempotent storage commit, ownership record, proof
	// consumption. Every failure path removes the staged temp file and leaves
	// the proof reusable.
	Upload(ctx context.Context, adm *Admission, body io.Reader) (*model.BlobDescriptor, error)

	// GetBlob streams a committed blob by content hash.
	GetBlob(ctx context.Context, hash string) (io.ReadCloser, *model.Blob, error)

	// ListByOwner returns blob descriptors owned by an identity.
	ListByOwner(ctx context.Context, pubkey string, limit, offset int) (*BlobListResult, error)
}

// Options configure the pipeline per deployment.
type Options struct {
	Rules []rules.Rule
	// RequireAuth demands a valid upload-purpose proof.
	RequireAuth bool
	// RequirePubkeyInRule additionally demands the matching rule lists the caller.
	RequirePubkeyInRule bool
	// WhitelistRequired gates staging on allow-list membership.
	WhitelistRequired bool
	// TempDir is the staging area; empty means os.TempDir.
	TempDir string
	// PublicHost, when set, is used to build descriptor URLs.
	PublicHost string
}

type uploadService struct {
	verifier *auth.Verifier
	guard    replay.Guard
	allow    AllowList
	store    storage.Storage
	repo     repository.BlobRepository
	opts     Options
}

// NewUploadService constructs the upload coordinator. verifier may be nil only
// when opts.RequireAuth is false.
func NewUploadService(verifier *auth.Verifier, guard replay.Guard, allow AllowList, store storage.Storage, repo repository.BlobRepository, opts Options) UploadService {
	return &uploadService{
		verifier: verifier,
		guard:    guard,
		allow:    allow,
		store:    store,
		repo:     repo,
		opts:     opts,
	}
}

func (s *uploadService) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	var claims *auth.Claims

	if s.opts.RequireAuth {
		if req.Proof == "" {
			return nil, ErrNoProof
		}
		var err error
		claims, err = s.verifier.Verify(req.Proof)
		if err != nil {
			return nil, err
		}
		used, err := s.guard.Used(ctx, claims.ProofID())
		if err != nil {
			return nil, fmt.Errorf("replay lookup: %w", err)
		}
		if used {
			return nil, replay.ErrProofUsed
		}
		if req.DeclaredHash != "" && !claims.BindsHash(req.DeclaredHash) {
			return nil, ErrAuthMissingHash
		}
	}

	identity := ""
	if claims != nil {
		identity = claims.Identity()
	}

	requirePubkey := s.opts.RequireAuth && s.opts.RequirePubkeyInRule
	in := rules.MatchInput{
		Type:   req.ContentType,
		Size:   req.ContentLength,
		Pubkey: identity,
	}
	rule := rules.Match(s.opts.Rules, in, requirePubkey)
	if rule == nil {
		// Distinguish "your pubkey is not listed" from "nothing accepts this
		// type" so the caller gets the right rejection.
		if requirePubkey && rules.Match(s.opts.Rules, in, false) != nil {
			return nil, ErrPubkeyNotInRule
		}
		return nil, fmt.Errorf("%w: %s", ErrNoRule, req.ContentType)
	}

	return &Admission{
		Claims:       claims,
		Rule:         rule,
		ContentType:  req.ContentType,
		DeclaredHash: req.DeclaredHash,
	}, nil
}

func (s *uploadService) Upload(ctx context.Context, adm *Admission, body io.Reader) (*model.BlobDescriptor, error) {
	identity := adm.Identity()

	if s.opts.WhitelistRequired {
		if identity == "" || !s.allow.IsMember(identity) {
			return nil, ErrNotWhitelisted
		}
	}

	// Claim the proof before any bytes hit disk. The reservation is returned
	// on every failure path so a failed upload never consumes the proof.
	reserved := false
	if adm.Claims != nil {
		if err := s.guard.Reserve(ctx, adm.Claims.ProofID(), adm.Claims.Expiry()); err != nil {
			if errors.Is(err, replay.ErrProofUsed) {
				return nil, err
			}
			return nil, fmt.Errorf("replay reserve: %w", err)
		}
		reserved = true
	}

	desc, err := s.stageAndCommit(ctx, adm, body)
	if err != nil {
		if reserved {
			_ = s.guard.Release(ctx, adm.Claims.ProofID())
		}
		return nil, err
	}

	if reserved {
		if err := s.guard.Commit(ctx, adm.Claims.ProofID()); err != nil {
			// The upload itself succeeded; a failed consumption mark is not
			// surfaced to the caller.
			return desc, nil
		}
	}
	return desc, nil
}

func (s *uploadService) stageAndCommit(ctx context.Context, adm *Admission, body io.Reader) (*model.BlobDescriptor, error) {
	tmp, err := os.CreateTemp(s.opts.TempDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	// The temp file is removed on every path, success included: once
	// committed, the content lives in object storage.
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	// Hash incrementally as bytes arrive; nothing is buffered in memory.
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	if adm.DeclaredHash != "" && adm.DeclaredHash != hash {
		return nil, ErrHashMismatch
	}
	if adm.Claims != nil && !adm.Claims.BindsHash(hash) {
		return nil, ErrHashMismatch
	}

	key := storage.BlobKey(hash)
	_, exists, err := s.store.Stat(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stat storage: %w", err)
	}
	if !exists {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind staged upload: %w", err)
		}
		if _, err := s.store.Put(ctx, key, tmp, storage.PutObjectOptions{
			Size:        size,
			ContentType: adm.ContentType,
		}); err != nil {
			return nil, fmt.Errorf("commit to storage: %w", err)
		}
	}

	contentType := adm.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	stored, err := s.repo.CreateBlob(ctx, &model.Blob{
		Hash:        hash,
		Size:        size,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("record blob: %w", err)
	}

	if identity := adm.Identity(); identity != "" {
		has, err := s.repo.HasOwner(ctx, hash, identity)
		if err != nil {
			return nil, fmt.Errorf("ownership lookup: %w", err)
		}
		if !has {
			if err := s.repo.AddOwner(ctx, hash, identity); err != nil {
				return nil, fmt.Errorf("record ownership: %w", err)
			}
		}
	}

	owners, err := s.repo.Owners(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	return stored.Descriptor(owners, s.blobURL(hash)), nil
}

func (s *uploadService) blobURL(hash string) string {
	if s.opts.PublicHost == "" {
		return ""
	}
	return strings.TrimSuffix(s.opts.PublicHost, "/") + "/" + hash
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (s *uploadService) GetBlob(ctx context.Context, hash string) (io.ReadCloser, *model.Blob, error) {
	blob, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, storage.BlobKey(hash))
	if err != nil {
		return nil, nil, fmt.Errorf("read storage: %w", err)
	}
	return rc, blob, nil
}

func (s *uploadService) ListByOwner(ctx context.Context, pubkey string, limit, offset int) (*BlobListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListByOwner(ctx, pubkey, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	items := make([]model.BlobDescriptor, 0, len(res.Items))
	for i := range res.Items {
		b := &res.Items[i]
		items = append(items, *b.Descriptor([]string{pubkey}, s.blobURL(b.Hash)))
	}
	return &BlobListResult{Items: items, Total: res.Total}, nil
}
