// Package snapshot reads and writes dated market snapshots and scan results
// in the output directory, optionally mirroring them to object storage.
package snapshot

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/normalize"
)

const (
	LatestSnapshotFile = "markets-normalized-latest.json"
	LatestScanFile     = "arbitrage-scan-latest.json"

	dateLayout = "2006-01-02"
	source     = "42.space GraphQL"
)

// Mirrored files above this size are uploaded in parts of this size.
var multipartThreshold = 8 << 20

var snapshotName = regexp.MustCompile(`^markets-normalized-\d{4}-\d{2}-\d{2}\.json$`)

// SnapshotFile returns the dated snapshot file name for date (YYYY-MM-DD).
func SnapshotFile(date string) string { return "markets-normalized-" + date + ".json" }

// ScanFile returns the dated scan result file name for date (YYYY-MM-DD).
func ScanFile(date string) string { return "arbitrage-scan-" + date + ".json" }

// Envelope is the on-disk snapshot format.
type Envelope struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Date        string                    `json:"date"`
	Source      string                    `json:"source"`
	Markets     []domain.NormalizedMarket `json:"markets"`
	Summary     normalize.Summary         `json:"summary"`
}

// Snapshot is a loaded snapshot and its provenance.
type Snapshot struct {
	// Name is the file (or object) the markets were read from; empty when no
	// snapshot exists.
	Name string
	// Digest is the hex BLAKE2b-256 of the file contents.
	Digest  string
	Markets []domain.NormalizedMarket
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Fs  afero.Fs
	Dir string
	// Mirror, when set, receives a copy of every file written.
	Mirror domain.BlobWriter
	// Remote, when set, is consulted by Latest if the local directory holds
	// no snapshot.
	Remote domain.BlobReader
	Prefix string
}

// Store manages the snapshot output directory.
type Store struct {
	fs     afero.Fs
	dir    string
	mirror domain.BlobWriter
	remote domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewStore creates a snapshot store. A nil Fs means the OS filesystem.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fs:     fsys,
		dir:    cfg.Dir,
		mirror: cfg.Mirror,
		remote: cfg.Remote,
		prefix: cfg.Prefix,
		logger: logger.With(slog.String("component", "snapshot")),
	}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// List returns the dated snapshot file names in the output directory, newest
// first. A missing directory yields an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && snapshotName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Latest loads the newest dated snapshot. When none exists locally the
// remote store is tried; when none exists anywhere an empty Snapshot is
// returned without error.
func (s *Store) Latest(ctx context.Context) (Snapshot, error) {
	names, err := s.List()
	if err != nil {
		return Snapshot{}, err
	}
	if len(names) > 0 {
		return s.Load(filepath.Join(s.dir, names[0]))
	}
	if s.remote != nil {
		return s.latestRemote(ctx)
	}
	return Snapshot{}, nil
}

// Load reads a snapshot file in either the envelope or the bare array
// format.
func (s *Store) Load(file string) (Snapshot, error) {
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read %s: %w", file, err)
	}
	markets, err := Decode(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %s: %w", file, err)
	}
	return Snapshot{Name: filepath.Base(file), Digest: Digest(data), Markets: markets}, nil
}

// Write stores markets as the snapshot for date and refreshes the latest
// alias. It returns the dated file path.
func (s *Store) Write(ctx context.Context, date string, markets []domain.NormalizedMarket) (string, error) {
	if markets == nil {
		markets = []domain.NormalizedMarket{}
	}
	env := Envelope{
		GeneratedAt: time.Now().UTC(),
		Date:        date,
		Source:      source,
		Markets:     markets,
		Summary:     normalize.Summarize(markets),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}

	dated, err := s.writeFile(ctx, SnapshotFile(date), data)
	if err != nil {
		return "", err
	}
	if _, err := s.writeFile(ctx, LatestSnapshotFile, data); err != nil {
		return "", err
	}
	s.logger.Info("snapshot written", slog.String("file", dated), slog.Int("markets", len(markets)))
	return dated, nil
}

// WriteScan stores a scan result as the latest result and as the dated
// result for the day it ran. It returns the latest file path.
func (s *Store) WriteScan(ctx context.Context, result domain.ScanResult) (string, error) {
	if result.Opportunities == nil {
		result.Opportunities = []domain.Opportunity{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode scan: %w", err)
	}

	latest, err := s.writeFile(ctx, LatestScanFile, data)
	if err != nil {
		return "", err
	}
	if _, err := s.writeFile(ctx, ScanFile(result.Timestamp.UTC().Format(dateLayout)), data); err != nil {
		return "", err
	}
	return latest, nil
}

// LatestScan reads the latest scan result file. domain.ErrNotFound is
// returned when no scan has been written yet.
func (s *Store) LatestScan(ctx context.Context) (domain.ScanResult, error) {
	file := filepath.Join(s.dir, LatestScanFile)
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ScanResult{}, domain.ErrNotFound
		}
		return domain.ScanResult{}, fmt.Errorf("snapshot: read %s: %w", file, err)
	}
	var result domain.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ScanResult{}, fmt.Errorf("snapshot: decode %s: %w", file, err)
	}
	return result, nil
}

// WriteTo writes arbitrary JSON to file, outside the managed names. Used for
// explicit -output targets.
func (s *Store) WriteTo(file string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(s.fs, file, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", file, err)
	}
	return nil
}

// Today returns the UTC date used in file names.
func Today() string { return time.Now().UTC().Format(dateLayout) }

// Decode parses snapshot bytes in either format.
func Decode(data []byte) ([]domain.NormalizedMarket, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []domain.NormalizedMarket{}, nil
	}

	if trimmed[0] == '[' {
		var markets []domain.NormalizedMarket
		if err := json.Unmarshal(trimmed, &markets); err != nil {
			return nil, fmt.Errorf("decode market list: %w", err)
		}
		return markets, nil
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Markets == nil {
		env.Markets = []domain.NormalizedMarket{}
	}
	return env.Markets, nil
}

// Digest returns the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// writeFile replaces name in the output directory via a temp file and
// rename, then mirrors it.
func (s *Store) writeFile(ctx context.Context, name string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", s.dir, err)
	}

	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("snapshot: rename %s: %w", target, err)
	}

	s.mirrorFile(ctx, name, data)
	return target, nil
}

func (s *Store) mirrorFile(ctx context.Context, name string, data []byte) {
	if s.mirror == nil {
		return
	}
	key := path.Join(s.prefix, name)
	var err error
	if len(data) > multipartThreshold {
		err = s.mirror.PutMultipart(ctx, key, bytes.NewReader(data), int64(multipartThreshold))
	} else {
		err = s.mirror.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		s.logger.Warn("mirror upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) latestRemote(ctx context.Context) (Snapshot, error) {
	infos, err := s.remote.List(ctx, s.prefix)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: list remote: %w", err)
	}

	var best string
	for _, info := range infos {
		if snapshotName.MatchString(path.Base(info.Path)) && info.Path > best {
			best = info.Path
		}
	}
	if best == "" {
		return Snapshot{}, nil
	}

	rc, err := s.remote.Get(ctx, best)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: fetch remote %s: %w", best, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read remote %s: %w", best, err)
	}
	markets, err := Decode(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %s: %w", best, err)
	}
	s.logger.Info("loaded snapshot from object storage", slog.String("key", best))
	return Snapshot{Name: path.Base(best), Digest: Digest(data), Markets: markets}, nil
}
