// Package voicedrop ingests voicemail delivery reports from the platform's
// SFTP file drop: download, parse, client-match, dedup-insert, mark-imported.
package voicedrop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/match"
	"github.com/ignite/reportsync/internal/pkg/logger"
)

// SettingsStore reads transport credentials.
type SettingsStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

// ImportedFileStore is the imported-file ledger.
type ImportedFileStore interface {
	ListFilenames(ctx context.Context) (map[string]struct{}, error)
	MarkImported(ctx context.Context, filename string) error
}

// CampaignStore upserts campaigns and maintains their cached counters.
type CampaignStore interface {
	Upsert(ctx context.Context, externalID, name string, clientID *uuid.UUID) (*domain.Campaign, error)
	RefreshRecordCount(ctx context.Context, campaignID uuid.UUID) error
}

// RecordStore is the dedup/upsert layer for delivery records.
type RecordStore interface {
	InsertNewRecords(ctx context.Context, campaignID uuid.UUID, candidates []domain.CampaignRecord) (int, error)
}

// ClientStore lists link candidates.
type ClientStore interface {
	ListBySourceType(ctx context.Context, st domain.SourceType) ([]domain.Client, error)
}

// Result summarizes one ingestion run.
type Result struct {
	FilesDownloaded    int `json:"files_downloaded"`
	CampaignsProcessed int `json:"campaigns_processed"`
	TotalRecords       int `json:"total_records"`
	FileErrors         int `json:"file_errors"`
}

// Syncer runs the file-drop ingestion pass.
type Syncer struct {
	dialer    Dialer
	settings  SettingsStore
	files     ImportedFileStore
	campaigns CampaignStore
	records   RecordStore
	clients   ClientStore

	stagingDir string
	ext        string
	batchSize  int
}

// NewSyncer wires an ingestion syncer.
func NewSyncer(dialer Dialer, settings SettingsStore, files ImportedFileStore,
	campaigns CampaignStore, records RecordStore, clients ClientStore,
	stagingDir, ext string, batchSize int) *Syncer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if ext == "" {
		ext = ".json"
	}
	return &Syncer{
		dialer:     dialer,
		settings:   settings,
		files:      files,
		campaigns:  campaigns,
		records:    records,
		clients:    clients,
		stagingDir: stagingDir,
		ext:        ext,
		batchSize:  batchSize,
	}
}

// Run executes one ingestion pass. Transport failures (connect/list) abort
// the run; everything downstream degrades per-file: a corrupt file is
// discarded from staging (forcing re-download next run) and the run
// continues. Re-running against an unchanged drop is a no-op thanks to the
// imported-file ledger and the dedup layer.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var res Result

	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return res, fmt.Errorf("create staging dir %s: %w", s.stagingDir, err)
	}

	settings, err := s.settings.GetAll(ctx)
	if err != nil {
		return res, fmt.Errorf("load transport settings: %w", err)
	}
	creds, err := CredentialsFromSettings(settings)
	if err != nil {
		return res, err
	}

	imported, err := s.files.ListFilenames(ctx)
	if err != nil {
		return res, fmt.Errorf("load imported files: %w", err)
	}
	staged, err := s.listStaged()
	if err != nil {
		return res, fmt.Errorf("list staging dir: %w", err)
	}

	if err := s.downloadNew(creds, imported, staged, &res); err != nil {
		return res, err
	}

	if err := s.importStaged(ctx, imported, &res); err != nil {
		return res, err
	}

	return res, nil
}

// listStaged returns the filenames already present in local staging.
func (s *Syncer) listStaged() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() && hasExtension(e.Name(), s.ext) {
			out[e.Name()] = struct{}{}
		}
	}
	return out, nil
}

// downloadNew pulls every remote file that is neither confirmed imported in
// the store nor already sitting in staging (the two independent skip sets
// tolerate a crash after download but before import). Downloads run
// sequentially over a single session dialed for this run only.
func (s *Syncer) downloadNew(creds Credentials, imported, staged map[string]struct{}, res *Result) error {
	session, err := s.dialer.Dial(creds)
	if err != nil {
		return err
	}
	defer session.Close()

	remote, err := session.List()
	if err != nil {
		return err
	}

	var newFiles []string
	for _, name := range remote {
		if !hasExtension(name, s.ext) {
			continue
		}
		if _, ok := imported[name]; ok {
			continue
		}
		if _, ok := staged[name]; ok {
			continue
		}
		newFiles = append(newFiles, name)
	}
	sort.Strings(newFiles)

	for _, name := range newFiles {
		localPath := filepath.Join(s.stagingDir, name)
		size, err := session.Download(name, localPath)
		if err != nil {
			logger.Error("voicedrop: download failed", "file", name, "error", err)
			res.FileErrors++
			continue
		}
		if size == 0 {
			// Keep the file: the dedup layer makes a later re-parse harmless,
			// but an empty report almost always means a truncated upload.
			logger.Warn("voicedrop: zero-byte download", "file", name)
			res.FileErrors++
		}
		res.FilesDownloaded++
		logger.Info("voicedrop: downloaded", "file", name, "bytes", size)
	}
	return nil
}

// importStaged parses every staged-but-unimported file and commits its
// campaign groups. The imported marker is written only after every group of
// the file has committed; a crash mid-file re-processes it next run and the
// dedup layer suppresses the overlap.
func (s *Syncer) importStaged(ctx context.Context, imported map[string]struct{}, res *Result) error {
	staged, err := s.listStaged()
	if err != nil {
		return fmt.Errorf("list staging dir: %w", err)
	}
	names := make([]string, 0, len(staged))
	for name := range staged {
		if _, ok := imported[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}

	candidates, err := s.clients.ListBySourceType(ctx, domain.SourceVoicemail)
	if err != nil {
		return fmt.Errorf("load link candidates: %w", err)
	}

	for _, name := range names {
		localPath := filepath.Join(s.stagingDir, name)
		data, err := os.ReadFile(localPath)
		if err != nil {
			logger.Error("voicedrop: read staged file failed", "file", name, "error", err)
			res.FileErrors++
			continue
		}

		groups, err := ParseReportFile(data)
		if err != nil {
			// Corrupt payload: discard so the next run re-downloads it.
			logger.Error("voicedrop: corrupt file discarded", "file", name, "error", err)
			os.Remove(localPath)
			res.FileErrors++
			continue
		}

		ok := true
		for _, g := range groups {
			inserted, err := s.importGroup(ctx, g, candidates)
			if err != nil {
				logger.Error("voicedrop: campaign group failed", "file", name, "campaign", g.ExternalID, "error", err)
				ok = false
				break
			}
			res.CampaignsProcessed++
			res.TotalRecords += inserted
		}
		if !ok {
			res.FileErrors++
			continue
		}

		if err := s.files.MarkImported(ctx, name); err != nil {
			return fmt.Errorf("mark imported %s: %w", name, err)
		}
		logger.Info("voicedrop: imported", "file", name, "campaigns", len(groups))
	}
	return nil
}

// importGroup upserts one campaign and dedup-inserts its records in batches.
// A proposed client link is only a fill-in: the upsert keeps any existing
// link untouched.
func (s *Syncer) importGroup(ctx context.Context, g CampaignGroup, candidates []domain.Client) (int, error) {
	var clientID *uuid.UUID
	if c := match.Client(g.Name, candidates); c != nil {
		clientID = &c.ID
	}

	campaign, err := s.campaigns.Upsert(ctx, g.ExternalID, g.Name, clientID)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for start := 0; start < len(g.Records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(g.Records) {
			end = len(g.Records)
		}
		n, err := s.records.InsertNewRecords(ctx, campaign.ID, g.Records[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}

	if err := s.campaigns.RefreshRecordCount(ctx, campaign.ID); err != nil {
		return inserted, err
	}
	return inserted, nil
}
