// Package backup uploads knowledge-base snapshots to a Google Drive folder.
package backup

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const snapshotMIMEType = "application/octet-stream"

// Syncer keeps one snapshot per day in the configured folder. Repeat syncs
// on the same day update that day's file, including across restarts.
type Syncer struct {
	files    *drive.FilesService
	folderID string

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		files:    svc.Files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Sync uploads the database file at localPath under a name keyed by date
// (YYYY-MM-DD).
func (s *Syncer) Sync(localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	name := snapshotName(date)

	fileID, ok := s.fileIDs[date]
	if !ok {
		fileID, err = s.findRemote(name)
		if err != nil {
			return err
		}
	}

	if fileID != "" {
		if _, err := s.files.Update(fileID, &drive.File{}).Media(f).Do(); err != nil {
			return fmt.Errorf("drive update %s: %w", name, err)
		}
		s.fileIDs[date] = fileID
		return nil
	}

	created, err := s.files.Create(&drive.File{
		Name:     name,
		MimeType: snapshotMIMEType,
		Parents:  []string{s.folderID},
	}).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create %s: %w", name, err)
	}

	s.fileIDs[date] = created.Id
	return nil
}

// findRemote locates an existing snapshot for the day, so a service restart
// does not leave duplicate files behind.
func (s *Syncer) findRemote(name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", name, s.folderID)
	list, err := s.files.List().Q(query).Fields("files(id)").PageSize(1).Do()
	if err != nil {
		return "", fmt.Errorf("drive lookup %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func snapshotName(date string) string {
	return fmt.Sprintf("campus-aide-%s.db", date)
}
