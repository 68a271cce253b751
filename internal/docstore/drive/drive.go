// Package drive implements the attachment store on Google Drive.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"

	"cantiere/internal/docstore"
)

type Store struct {
	drive        *gdrive.Service
	rootFolderID string
}

var _ docstore.Store = (*Store)(nil)

// NewFromEnv creates a Drive-backed attachment store. Required:
// ATTACHMENT_ROOT_FOLDER_ID. Credentials follow the same environment
// variables as the ledger client.
func NewFromEnv(ctx context.Context) (*Store, error) {
	rootFolderID := strings.TrimSpace(os.Getenv("ATTACHMENT_ROOT_FOLDER_ID"))
	if rootFolderID == "" {
		return nil, errors.New("missing ATTACHMENT_ROOT_FOLDER_ID")
	}

	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	svc, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Store{drive: svc, rootFolderID: rootFolderID}, nil
}

func loadCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Store uploads the attachment under folder (a subfolder name beneath the
// configured root; empty files the attachment directly under the root).
func (s *Store) Store(ctx context.Context, data []byte, filename, mimeType, folder string) (docstore.StoredFile, error) {
	if s.drive == nil {
		return docstore.StoredFile{}, errors.New("drive store not initialized")
	}
	if len(data) == 0 {
		return docstore.StoredFile{}, fmt.Errorf("empty file %q", filename)
	}

	parentID := s.rootFolderID
	if folder != "" {
		id, err := s.ensureFolder(ctx, folder)
		if err != nil {
			return docstore.StoredFile{}, err
		}
		parentID = id
	}

	meta := &gdrive.File{
		Name:     filename,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}
	created, err := s.drive.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id", "name", "webViewLink").
		Context(ctx).Do()
	if err != nil {
		return docstore.StoredFile{}, fmt.Errorf("upload attachment %q: %w", filename, err)
	}

	return docstore.StoredFile{ID: created.Id, Name: created.Name, URL: created.WebViewLink}, nil
}

func (s *Store) Delete(ctx context.Context, fileID string) error {
	if s.drive == nil {
		return errors.New("drive store not initialized")
	}
	if err := s.drive.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete attachment %s: %w", fileID, err)
	}
	return nil
}

// ensureFolder finds or creates a named subfolder under the root.
func (s *Store) ensureFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = 'application/vnd.google-apps.folder' and trashed = false",
		strings.ReplaceAll(name, "'", "\\'"), s.rootFolderID)
	list, err := s.drive.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("find folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := s.drive.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  []string{s.rootFolderID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return created.Id, nil
}
