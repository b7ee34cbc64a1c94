package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studycore/internal/archive"
)

// ArchiveManifest describes one exported computation-log snapshot.
type ArchiveManifest struct {
	Key        string    `json:"key"`
	StudyID    string    `json:"study_id,omitempty"`
	Entries    int       `json:"entries"`
	ExportedAt time.Time `json:"exported_at"`
}

// ArchiveHistory exports a study's computation history as a JSON snapshot
// into the archiver. An empty studyID exports entries for every study
// recorded in the given window of days.
func (e *Engine) ArchiveHistory(ctx context.Context, dst archive.Archiver, studyID string, days int) (ArchiveManifest, error) {
	var (
		entries []ComputationLogEntry
		err     error
	)
	if studyID != "" {
		entries, err = e.logs.ComputationHistory(ctx, studyID, 0)
	} else {
		entries, err = e.logs.ComputationsSince(ctx, e.windowStart(days))
	}
	if err != nil {
		return ArchiveManifest{}, fmt.Errorf("collect history: %w", err)
	}

	now := e.clock.Now()
	key := archiveKey(studyID, now)
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return ArchiveManifest{}, fmt.Errorf("encode history: %w", err)
	}
	if _, err := dst.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return ArchiveManifest{}, fmt.Errorf("archive history: %w", err)
	}

	manifest := ArchiveManifest{Key: key, StudyID: studyID, Entries: len(entries), ExportedAt: now}
	e.logger.Info().
		Str("key", key).
		Str("study_id", studyID).
		Int("entries", len(entries)).
		Msg("computation history archived")
	return manifest, nil
}

func archiveKey(studyID string, at time.Time) string {
	stamp := at.UTC().Format("20060102T150405Z")
	if studyID == "" {
		return fmt.Sprintf("computation-log/all/%s.json", stamp)
	}
	return fmt.Sprintf("computation-log/%s/%s.json", studyID, stamp)
}
