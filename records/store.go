package records

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyberinferno/bufferd/cacher"
	"github.com/cyberinferno/bufferd/logger"
)

// recordTTL bounds how long a loaded record may be served from cache.
const recordTTL = 5 * time.Minute

// Store persists student records as one XML file per sequence number inside
// a directory. Reads go through a Cacher so repeated loads of the same
// record hit the cache instead of the disk.
type Store struct {
	dir   string
	cache cacher.Cacher[Student]
	log   logger.Logger
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
//
// Parameters:
//   - dir: Directory for the XML files
//   - cache: Cache fronting record loads
//   - log: Logger for store events
//
// Returns:
//   - A ready Store, or an error if the directory cannot be created
func NewStore(dir string, cache cacher.Cacher[Student], log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	return &Store{dir: dir, cache: cache, log: log}, nil
}

// Filename returns the XML file name for a student sequence number.
//
// Parameters:
//   - n: The student sequence number
//
// Returns:
//   - The file name, e.g. "student3.xml"
func Filename(n int) string {
	return fmt.Sprintf("student%d.xml", n)
}

// Path returns the absolute location of record n inside the store.
func (s *Store) Path(n int) string {
	return filepath.Join(s.dir, Filename(n))
}

// Save writes the student record to its XML file and drops any cached copy.
//
// Parameters:
//   - ctx: Context for the cache invalidation
//   - n: The student sequence number
//   - student: The record to persist
//
// Returns:
//   - An error if encoding, writing, or cache invalidation fails
func (s *Store) Save(ctx context.Context, n int, student Student) error {
	body, err := xml.MarshalIndent(student, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode student %d: %w", n, err)
	}

	data := append([]byte(xml.Header), body...)
	if err := os.WriteFile(s.Path(n), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", Filename(n), err)
	}

	s.log.Debug("record saved", logger.Field{Key: "file", Value: Filename(n)})
	return s.cache.Delete(ctx, Filename(n))
}

// Load reads the student record for sequence number n, serving it from the
// cache when possible.
//
// Parameters:
//   - ctx: Context for cancellation and the cache lookup
//   - n: The student sequence number
//
// Returns:
//   - The loaded record, or an error if the file is missing or malformed
func (s *Store) Load(ctx context.Context, n int) (Student, error) {
	return s.cache.GetOrFetch(ctx, Filename(n), recordTTL, func(ctx context.Context) (Student, error) {
		return s.readFile(n)
	})
}

// Clear truncates record n's file to empty and invalidates its cache entry.
// The file stays in place as a marker that the record existed.
//
// Parameters:
//   - ctx: Context for the cache invalidation
//   - n: The student sequence number
//
// Returns:
//   - An error if truncating or cache invalidation fails
func (s *Store) Clear(ctx context.Context, n int) error {
	if err := os.WriteFile(s.Path(n), nil, 0644); err != nil {
		return fmt.Errorf("failed to clear %s: %w", Filename(n), err)
	}

	s.log.Debug("record cleared", logger.Field{Key: "file", Value: Filename(n)})
	return s.cache.Delete(ctx, Filename(n))
}

func (s *Store) readFile(n int) (Student, error) {
	data, err := os.ReadFile(s.Path(n))
	if err != nil {
		return Student{}, fmt.Errorf("failed to read %s: %w", Filename(n), err)
	}

	var student Student
	if err := xml.Unmarshal(data, &student); err != nil {
		return Student{}, fmt.Errorf("failed to decode %s: %w", Filename(n), err)
	}

	return student, nil
}
