package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// 审计轨迹是财政记录，默认保留窗口远长于普通日志。
const (
	defaultAuditLimitMB  = 64
	defaultAuditBackups  = 12
	defaultAuditAgeDays  = 365
	auditBackupTimestamp = "20060102T150405"
)

// auditTrailWriter 以追加方式写入审计轨迹文件，写满后切换到
// 带时间戳后缀的归档，并按份数与时效修剪归档。
type auditTrailWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	limit   int64
	keep    int
	retain  time.Duration
	written int64
}

func newAuditTrailWriter(path string, limitMB, keep, retainDays int) (*auditTrailWriter, error) {
	if path == "" {
		return nil, errors.New("audit trail path is required")
	}
	if limitMB <= 0 {
		limitMB = defaultAuditLimitMB
	}
	if keep <= 0 {
		keep = defaultAuditBackups
	}
	if retainDays <= 0 {
		retainDays = defaultAuditAgeDays
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit trail directory: %w", err)
	}
	return &auditTrailWriter{
		path:   path,
		limit:  int64(limitMB) * 1024 * 1024,
		keep:   keep,
		retain: time.Duration(retainDays) * 24 * time.Hour,
	}, nil
}

func (w *auditTrailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.written+int64(len(p)) > w.limit {
		if err := w.archive(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *auditTrailWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

func (w *auditTrailWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit trail: %w", err)
	}
	w.file = file
	w.written = info.Size()
	return nil
}

// archive 将当前文件改名为 <path>.<时间戳> 并触发归档修剪。
func (w *auditTrailWriter) archive() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.written = 0

	stamp := time.Now().UTC().Format(auditBackupTimestamp)
	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+"."+stamp); err != nil {
			return fmt.Errorf("archive audit trail: %w", err)
		}
	}
	w.prune()
	return nil
}

// prune 删除超出保留份数或保留时效的归档。归档名按时间戳排序，
// 最新的排在最前。
func (w *auditTrailWriter) prune() {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	prefix := filepath.Base(w.path) + "."
	var backups []string
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), prefix)
		if _, err := time.Parse(auditBackupTimestamp, suffix); err == nil {
			backups = append(backups, m)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	cutoff := time.Now().Add(-w.retain)
	for i, backup := range backups {
		if i < w.keep {
			if info, err := os.Stat(backup); err == nil && info.ModTime().After(cutoff) {
				continue
			}
		}
		_ = os.Remove(backup)
	}
}
