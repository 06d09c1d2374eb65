package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAuditTrailWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := newAuditTrailWriter(path, 1, 3, 30)
	if err != nil {
		t.Fatalf("构造审计写入器失败: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取审计轨迹失败: %v", err)
	}
	if !bytes.Contains(raw, []byte("first")) || !bytes.Contains(raw, []byte("second")) {
		t.Fatalf("审计轨迹内容不完整: %s", raw)
	}
}

func TestAuditTrailWriterArchivesOnOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := newAuditTrailWriter(path, 1, 3, 30)
	if err != nil {
		t.Fatalf("构造审计写入器失败: %v", err)
	}
	defer w.Close()
	// 压低阈值以触发归档。
	w.limit = 32

	if _, err := w.Write(bytes.Repeat([]byte("a"), 30)); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write(bytes.Repeat([]byte("b"), 30)); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	backups, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("枚举归档失败: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("应产生一个归档, 实际 %d", len(backups))
	}
	suffix := filepath.Base(backups[0])[len(filepath.Base(path))+1:]
	if _, err := time.Parse(auditBackupTimestamp, suffix); err != nil {
		t.Fatalf("归档后缀应为时间戳: %s", suffix)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取当前文件失败: %v", err)
	}
	if !bytes.Equal(raw, bytes.Repeat([]byte("b"), 30)) {
		t.Fatalf("归档后当前文件应只含新内容: %s", raw)
	}
}

func TestAuditTrailWriterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	w, err := newAuditTrailWriter(path, 0, 0, 0)
	if err != nil {
		t.Fatalf("构造审计写入器失败: %v", err)
	}
	defer w.Close()

	if w.limit != int64(defaultAuditLimitMB)*1024*1024 {
		t.Fatalf("默认大小阈值错误: %d", w.limit)
	}
	if w.keep != defaultAuditBackups {
		t.Fatalf("默认保留份数错误: %d", w.keep)
	}
	if w.retain != time.Duration(defaultAuditAgeDays)*24*time.Hour {
		t.Fatalf("默认保留时效错误: %v", w.retain)
	}

	if _, err := newAuditTrailWriter("", 1, 1, 1); err == nil {
		t.Fatalf("空路径应报错")
	}
}
