package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// Stats summarizes what is stored.
type Stats struct {
	Quotes        int64 `json:"quotes"`
	Briefings     int64 `json:"briefings"`
	Suppliers     int64 `json:"suppliers"`
	Conversations int64 `json:"conversations"`
	ChatTurns     int64 `json:"chat_turns"`
	DiskBytes     int64 `json:"disk_bytes"`
}

// Stats counts rows per table and measures the database files on disk.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM quotes`, &st.Quotes},
		{`SELECT COUNT(DISTINCT briefing_id) FROM quotes`, &st.Briefings},
		{`SELECT COUNT(*) FROM suppliers`, &st.Suppliers},
		{`SELECT COUNT(*) FROM conversation_states`, &st.Conversations},
		{`SELECT COUNT(*) FROM chat_turns`, &st.ChatTurns},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	size, err := DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
	if err != nil {
		return nil, err
	}
	st.DiskBytes = size
	return &st, nil
}

// DiskUsageBytes returns the total size in bytes of the given files or directories.
// Missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
