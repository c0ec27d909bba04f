// Package scanner walks directories of exported case files and runs the
// full ring detection pipeline over each one. Batch scans give retroactive
// coverage over historical exports; watch mode picks up files dropped by
// upstream case tooling.
package scanner

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/muling-engine/internal/db"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/internal/ingest"
)

// ErrAlreadyRunning is returned when a batch scan is requested while one is
// still in flight.
var ErrAlreadyRunning = errors.New("scanner: scan already in progress")

// maxFilesPerTick bounds how many new files one watch tick processes, so a
// bulk drop cannot stall the ticker.
const maxFilesPerTick = 5

// CaseScanner runs detection over case files with a fresh detector per
// file, persisting results to the archive when one is attached.
type CaseScanner struct {
	store        *db.Store // optional
	detectCfg    heuristics.DetectorConfig
	minAlertRisk float64
	alertFunc    func(alert ScanAlert) // optional broadcast callback
	workers      int

	// Progress tracking (atomic for safe concurrent reads)
	filesTotal   atomic.Int64
	filesScanned atomic.Int64
	rowsParsed   atomic.Int64
	ringsFound   atomic.Int64
	isRunning    atomic.Bool
}

// ScanAlert is emitted for every ring in a scanned file that clears the
// alert threshold.
type ScanAlert struct {
	File        string   `json:"file"`
	RunID       string   `json:"run_id"`
	RingID      string   `json:"ring_id"`
	PatternType string   `json:"pattern_type"`
	RiskScore   float64  `json:"risk_score"`
	Members     []string `json:"members"`
	Timestamp   string   `json:"timestamp"`
}

// ScanProgress represents the scanner's current state for the API.
type ScanProgress struct {
	IsRunning    bool  `json:"is_running"`
	FilesTotal   int64 `json:"files_total"`
	FilesScanned int64 `json:"files_scanned"`
	RowsParsed   int64 `json:"rows_parsed"`
	RingsFound   int64 `json:"rings_found"`
}

// NewCaseScanner builds a scanner. A nil store disables persistence and a
// nil alertFunc disables alerting; workers <= 0 falls back to 4.
func NewCaseScanner(store *db.Store, cfg heuristics.DetectorConfig, minAlertRisk float64, workers int, alertFunc func(ScanAlert)) *CaseScanner {
	if workers <= 0 {
		workers = 4
	}
	return &CaseScanner{
		store:        store,
		detectCfg:    cfg,
		minAlertRisk: minAlertRisk,
		alertFunc:    alertFunc,
		workers:      workers,
	}
}

// GetProgress returns the current scanning progress (thread-safe).
func (s *CaseScanner) GetProgress() ScanProgress {
	return ScanProgress{
		IsRunning:    s.isRunning.Load(),
		FilesTotal:   s.filesTotal.Load(),
		FilesScanned: s.filesScanned.Load(),
		RowsParsed:   s.rowsParsed.Load(),
		RingsFound:   s.ringsFound.Load(),
	}
}

// ScanDirectory processes every case file under dir asynchronously, at most
// s.workers files at a time. Only one batch scan runs at a time.
func (s *CaseScanner) ScanDirectory(ctx context.Context, dir string) error {
	if s.isRunning.Load() {
		return ErrAlreadyRunning
	}

	files, err := listCaseFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("scanner: no case files in " + dir)
	}

	s.isRunning.Store(true)
	s.filesTotal.Store(int64(len(files)))
	s.filesScanned.Store(0)
	s.rowsParsed.Store(0)
	s.ringsFound.Store(0)

	go func() {
		defer s.isRunning.Store(false)

		log.Printf("[CaseScanner] Starting batch scan: %d files under %s", len(files), dir)

		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(s.workers)
		for _, file := range files {
			f := file
			grp.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				s.scanFile(gctx, f)
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			log.Printf("[CaseScanner] Scan cancelled: %v", err)
			return
		}

		log.Printf("[CaseScanner] Scan complete: %d files, %d rows, %d rings found",
			s.filesScanned.Load(), s.rowsParsed.Load(), s.ringsFound.Load())
	}()

	return nil
}

// Watch polls a drop directory and scans each new case file once. The seen
// set grows with the directory; operators are expected to rotate drop
// directories rather than let them grow forever.
func (s *CaseScanner) Watch(ctx context.Context, dir string, interval time.Duration) {
	log.Printf("[CaseScanner] Watching %s every %s", dir, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			log.Println("[CaseScanner] Stopping directory watch")
			return
		case <-ticker.C:
			files, err := listCaseFiles(dir)
			if err != nil {
				log.Printf("[CaseScanner] Watch error listing %s: %v", dir, err)
				continue
			}

			processed := 0
			for _, f := range files {
				if seen[f] {
					continue
				}
				seen[f] = true
				s.scanFile(ctx, f)

				processed++
				if processed >= maxFilesPerTick {
					break
				}
			}
		}
	}
}

// scanFile ingests and analyzes a single case file. Problems with one file
// are logged and skipped; they never abort the surrounding scan.
func (s *CaseScanner) scanFile(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("[CaseScanner] Error opening %s: %v", path, err)
		return
	}
	defer f.Close()

	ds, err := ingest.ParseCSV(f)
	if err != nil {
		log.Printf("[CaseScanner] Skipping %s: %v", path, err)
		return
	}

	detector := heuristics.NewRingDetector(ds.Graph, s.detectCfg)
	result, err := detector.Detect()
	if err != nil {
		log.Printf("[CaseScanner] Detection failed for %s: %v", path, err)
		return
	}

	runID := uuid.NewString()
	s.filesScanned.Add(1)
	s.rowsParsed.Add(int64(ds.Metadata.TotalTransactions))
	s.ringsFound.Add(int64(len(result.Rings)))

	if s.store != nil {
		rec := db.AnalysisRecord{
			RunID:     runID,
			Source:    filepath.Base(path),
			Metadata:  ds.Metadata,
			Result:    result,
			CreatedAt: time.Now(),
		}
		if err := s.store.SaveAnalysis(ctx, rec); err != nil {
			log.Printf("[CaseScanner] DB persist error for %s: %v", path, err)
		}
	}

	if s.alertFunc == nil {
		return
	}
	for _, ring := range result.Rings {
		if ring.RiskScore < s.minAlertRisk {
			continue
		}
		s.alertFunc(ScanAlert{
			File:        filepath.Base(path),
			RunID:       runID,
			RingID:      ring.RingID,
			PatternType: ring.PatternType,
			RiskScore:   ring.RiskScore,
			Members:     ring.MemberAccounts,
			Timestamp:   time.Now().Format(time.RFC3339),
		})
	}
}

// listCaseFiles returns the sorted full paths of CSV files directly under
// dir. Subdirectories are not descended into.
func listCaseFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
