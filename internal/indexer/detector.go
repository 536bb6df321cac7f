package indexer

import (
	"context"
	"errors"
	"slices"

	"media-compressor/internal/catalog"
	"media-compressor/internal/filesystem"
	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
	"media-compressor/internal/scanner"
	"media-compressor/internal/settings"
	"media-compressor/internal/workers"
)

// Detector reconciles scan results with the catalog.
type Detector struct {
	catalog  *catalog.Catalog
	settings *settings.Settings
	stop     *workers.StopFlag
	log      *logging.Logger
}

// NewDetector creates a detector. stop may be nil.
func NewDetector(cat *catalog.Catalog, st *settings.Settings, stop *workers.StopFlag) *Detector {
	return &Detector{
		catalog:  cat,
		settings: st,
		stop:     stop,
		log:      logging.WithSource("ChangeDetector"),
	}
}

// MarkAlreadyIndexed flags the scanned files that have a record. A file is
// also flagged for re-indexing when its timestamps moved and its content
// hash no longer matches; a copy that only touched timestamps is not.
func (d *Detector) MarkAlreadyIndexed(byPath map[string]*catalog.Record, files []*scanner.ScannedFile) {
	d.log.Info("BEGIN:: Catalog lookup for indexed files")
	total := len(files)
	for i, f := range files {
		if d.stop.IsSet() {
			break
		}
		rec, ok := byPath[f.Path]
		if !ok {
			continue
		}
		f.AlreadyIndexed = true

		if f.CreationTime.Equal(rec.CreationTime) && f.ModificationTime.Equal(rec.ModificationTime) {
			continue
		}
		hash, err := filesystem.HashFile(f.Path)
		if err != nil {
			d.log.Warn("Failed to hash %s, keeping the existing record: %v", f.Path, err)
			continue
		}
		f.Hash = hash
		if hash != rec.OriginalHash {
			f.NeedsReindex = true
		}
		d.log.Debug("Searched Index %d/%d: %s (AlreadyIndexed = %v, NeedsReindex = %v)",
			i+1, total, f.Path, f.AlreadyIndexed, f.NeedsReindex)
	}
	d.log.Info("END:: Catalog lookup for indexed files")
}

// RemoveStale deletes every record whose path is not in the scan, along
// with its output file. It only makes sense after a full scan. Records
// below an unreadable directory are kept, since the scan could not see
// whether their files still exist.
func (d *Detector) RemoveStale(ctx context.Context, files []*scanner.ScannedFile, unreadable []string) (int, error) {
	d.log.Info("BEGIN:: Deletion of stale records")
	records, err := d.catalog.List(ctx, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		d.log.Info("No records found in the catalog")
	}

	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[f.Path] = true
	}

	removed := 0
	for _, rec := range records {
		if d.stop.IsSet() {
			break
		}
		if scanned[rec.Path] {
			continue
		}
		if slices.ContainsFunc(unreadable, func(dir string) bool { return filesystem.IsWithin(dir, rec.Path) }) {
			d.log.Debug("Keeping %s: its directory could not be scanned", rec.Path)
			continue
		}
		ok, err := d.remove(ctx, rec)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	d.log.Info("END:: Deletion of stale records (%d removed)", removed)
	return removed, nil
}

// RemoveDeleted removes the records of paths a targeted scan reported
// as deleted.
func (d *Detector) RemoveDeleted(ctx context.Context, deleted []string) (int, error) {
	removed := 0
	for _, path := range deleted {
		if d.stop.IsSet() {
			break
		}
		rec, err := d.catalog.Get(ctx, path)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		ok, err := d.remove(ctx, rec)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// remove deletes the record's output file, then the record. When the
// output cannot be deleted the record is kept so the next run retries.
func (d *Detector) remove(ctx context.Context, rec *catalog.Record) (bool, error) {
	output := d.settings.OutputPath(rec.HasCaptureDate(), rec.OutputRelPath)
	d.log.Info("Deleting stale record %s and its output file %q", rec.Path, output)

	if output != "" {
		if _, err := filesystem.RemoveIfExists(output); err != nil {
			d.log.Error("Failed to delete output of %s: %v", rec.Path, err)
			return false, nil
		}
	}
	if err := d.catalog.Delete(ctx, rec.Path); err != nil {
		return false, err
	}
	metrics.IndexerStaleRemoved.Inc()
	return true, nil
}
