package pp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// RegisterResult is the outcome of a metadata registration. UploadRequired
// is true when no content bytes are stored for the record's hash yet.
type RegisterResult struct {
	Record         *HostFile
	UploadRequired bool
	UploadURL      string
}

// UploadOutcome classifies the result of an upload attempt.
type UploadOutcome int

const (
	// UploadStored means the content was verified, stored, and linked to
	// the matching host file record.
	UploadStored UploadOutcome = iota
	// UploadHashMismatch means the uploaded bytes hash to something other
	// than the declared hash; nothing was stored.
	UploadHashMismatch
	// UploadRecordNotFound means the content was stored but no host file
	// record matched (hash, hostname, filepath). Future registrations of
	// the same hash still benefit from the stored bytes.
	UploadRecordNotFound
)

// UploadResult describes the outcome of AcceptUpload.
type UploadResult struct {
	Outcome  UploadOutcome
	SHA256   string
	Computed string // hash of the received bytes; differs from SHA256 on mismatch
	Size     int64
	Location string
}

// Service is the upload coordinator and dedup gate. It decides per hash
// whether bytes must be transferred at all and performs the
// content-addressed store exactly once even under concurrent submissions
// from many hosts.
type Service struct {
	catalog Catalog
	store   ContentStore
	events  EventSink
	logger  Logger
	clock   Clock
	idgen   IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(catalog Catalog, store ContentStore, events EventSink, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		events:  events,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// RegisterMetadata records a per-host file claim and decides whether an
// upload is required. Metadata is always recorded, even for duplicate
// content; the upload decision is checked against the catalog synchronously,
// never cached, so the epoch upload for a hash is always visible to later
// registrations.
func (s *Service) RegisterMetadata(rec *HostFile) (*RegisterResult, error) {
	if !ValidSHA256(rec.SHA256) {
		return nil, fmt.Errorf("invalid sha256: %q", rec.SHA256)
	}

	hasContent, err := s.catalog.HasStoredContent(rec.SHA256)
	if err != nil {
		return nil, fmt.Errorf("checking for stored content: %w", err)
	}

	rec.ID = s.idgen.New()
	rec.CreatedAt = s.clock.Now().UTC()
	if err := s.catalog.InsertHostFile(rec); err != nil {
		return nil, fmt.Errorf("recording host file: %w", err)
	}

	result := &RegisterResult{Record: rec, UploadRequired: !hasContent}
	if result.UploadRequired {
		result.UploadURL = "/upload_file/" + rec.SHA256
	} else {
		s.logger.Debug("content deduplicated", "sha256", rec.SHA256, "hostname", rec.Hostname)
	}

	return result, nil
}

// AcceptUpload receives content bytes for a previously registered hash. The
// stream is re-hashed independently of the caller's claim; a mismatch is
// rejected with no side effects. On match the bytes are stored (idempotent
// under concurrent uploads of the same hash) and the matching host file
// record is flipped to has_file_content. A missing host file record is
// reported, but the bytes stay stored under the hash.
func (s *Service) AcceptUpload(ctx context.Context, hash, hostname, filepath string, r io.Reader) (*UploadResult, error) {
	if !ValidSHA256(hash) {
		return nil, fmt.Errorf("invalid sha256: %q", hash)
	}

	// Spool to a temp file while hashing so nothing touches the store
	// before the content is verified.
	spool, err := os.CreateTemp("", "pp-upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload spool: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(spool, digest), r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	computed := hex.EncodeToString(digest.Sum(nil))
	if computed != hash {
		s.logger.Warn("upload content mismatch", "declared", hash, "computed", computed)
		return &UploadResult{Outcome: UploadHashMismatch, SHA256: hash, Computed: computed, Size: size}, nil
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding upload spool: %w", err)
	}
	if err := s.store.Store(ctx, hash, spool, size); err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	location := s.store.Location(hash)
	if err := s.catalog.MarkContentStored(hash, location); err != nil {
		return nil, fmt.Errorf("marking content stored: %w", err)
	}

	updated, err := s.catalog.MarkHostFileUploaded(hash, hostname, filepath, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("marking host file uploaded: %w", err)
	}

	result := &UploadResult{SHA256: hash, Computed: computed, Size: size, Location: location}
	if !updated {
		result.Outcome = UploadRecordNotFound
		s.logger.Warn("no host file record for upload", "sha256", hash, "hostname", hostname, "filepath", filepath)
		return result, nil
	}

	result.Outcome = UploadStored
	s.logger.Info("content uploaded", "sha256", hash, "size", size, "location", location)
	return result, nil
}

// LookupByHash returns the content record for a hash, or nil if unknown.
func (s *Service) LookupByHash(hash string) (*ContentRecord, error) {
	if !ValidSHA256(hash) {
		return nil, fmt.Errorf("invalid sha256: %q", hash)
	}
	return s.catalog.ContentBySHA256(hash)
}

// ListClones returns all host files sharing a hash, epoch record first.
func (s *Service) ListClones(hash string) ([]*HostFile, error) {
	if !ValidSHA256(hash) {
		return nil, fmt.Errorf("invalid sha256: %q", hash)
	}
	return s.catalog.ClonesBySHA256(hash)
}
