// Package memory holds an in-memory attachment store for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"cantiere/internal/docstore"
)

type file struct {
	data     []byte
	name     string
	mimeType string
	folder   string
}

type Store struct {
	mu    sync.Mutex
	files map[string]file
	next  int
}

func New() *Store {
	return &Store{files: map[string]file{}}
}

func (s *Store) Store(_ context.Context, data []byte, filename, mimeType, folder string) (docstore.StoredFile, error) {
	if len(data) == 0 {
		return docstore.StoredFile{}, fmt.Errorf("empty file %q", filename)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("mem-file-%d", s.next)
	s.files[id] = file{data: append([]byte(nil), data...), name: filename, mimeType: mimeType, folder: folder}
	return docstore.StoredFile{ID: id, Name: filename, URL: "memory://" + id}, nil
}

func (s *Store) Delete(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	delete(s.files, fileID)
	return nil
}

// Count reports how many files are held. Test helper.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
