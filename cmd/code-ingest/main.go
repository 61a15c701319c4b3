// Command code-ingest loads bulk-issued single-use promotion codes from
// gzipped code list files into the promotion_codes table, bound to a
// template promotion.
//
// Campaign tooling occasionally emits the same code into more than one
// batch file. A single-use code must be unique, so codes appearing in two
// or more files are rejected. Cross-file duplicate detection uses one bloom
// filter per file so the files never have to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/retailpoint/promo/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 12
	insertBatch   = 1000
)

// fileResult holds suspected cross-file duplicates found in one file,
// keyed by code with a bitmask of the files it appeared in.
type fileResult struct {
	suspects map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		promotionID string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code list files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&promotionID, "promotion-id", "", "template promotion the codes redeem as")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if promotionID == "" {
		slog.Error("promotion id is required: set --promotion-id")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, promotionID); err != nil {
		slog.Error("code ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, promotionID string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz code files in %s", dataDir)
	}

	// Pass 1: build one bloom filter per file, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find codes suspected to appear in 2+ files.
	slog.Info("pass 2: detecting cross-file duplicates")

	duplicates, err := findDuplicates(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}

	slog.Info("duplicates rejected", slog.Int("count", len(duplicates)))

	// Pass 3: stream files once more and batch insert the survivors.
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := ensurePromotionExists(ctx, pool, promotionID); err != nil {
		return err
	}

	inserted, err := writeCodes(ctx, pool, files, promotionID, duplicates)
	if err != nil {
		return errors.Wrap(err, "write codes to database")
	}

	slog.Info("codes inserted", slog.Int64("count", inserted))
	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if validCodeFormat(code) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findDuplicates re-streams each file and checks codes against OTHER files'
// bloom filters. A code appearing in 2 or more files is a duplicate.
func findDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]bool, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findSuspectsInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.suspects {
			merged[code] |= mask
		}
	}

	// Codes confirmed in 2+ files are rejected. A bloom hit not confirmed
	// by a second file's own scan was a false positive and stays eligible.
	duplicates := make(map[string]bool)
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			duplicates[code] = true
		}
	}

	return duplicates, nil
}

func findSuspectsInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		suspects := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if !validCodeFormat(code) {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check whether this code appears in any OTHER file's filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					suspects[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for duplicates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("suspects", len(suspects)),
		)

		results[idx] = fileResult{suspects: suspects}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

func validCodeFormat(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

func ensurePromotionExists(ctx context.Context, pool *pgxpool.Pool, promotionID string) error {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`, promotionID,
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "check template promotion")
	}
	if !exists {
		return errors.Errorf("template promotion %q does not exist", promotionID)
	}
	return nil
}

// writeCodes streams every file again, skips rejected duplicates, and
// inserts the rest in batches. Re-running the ingest is safe: existing
// codes are left untouched.
func writeCodes(ctx context.Context, pool *pgxpool.Pool, files []string, promotionID string, duplicates map[string]bool) (int64, error) {
	var (
		inserted int64
		pending  []string
		seen     = make(map[string]bool)
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		var batch pgx.Batch
		for _, code := range pending {
			batch.Queue(
				`INSERT INTO promotion_codes (code, promotion_id) VALUES ($1, $2)
				 ON CONFLICT (code) DO NOTHING`,
				code, promotionID,
			)
		}
		if err := pool.SendBatch(ctx, &batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		inserted += int64(len(pending))
		pending = pending[:0]
		return nil
	}

	for i, path := range files {
		var streamErr error
		if err := streamGzFile(ctx, path, func(code string) {
			if streamErr != nil {
				return
			}
			if !validCodeFormat(code) || duplicates[code] || seen[code] {
				return
			}
			seen[code] = true

			pending = append(pending, code)
			if len(pending) >= insertBatch {
				streamErr = flush()
			}
		}); err != nil {
			return inserted, errors.Wrapf(err, "stream file %d", i+1)
		}
		if streamErr != nil {
			return inserted, streamErr
		}

		if err := flush(); err != nil {
			return inserted, err
		}

		slog.Info("file ingested", slog.Int("file", i+1), slog.Int64("inserted_so_far", inserted))
	}

	return inserted, nil
}
