package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sovereign.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("默认监听地址 = %s", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" || cfg.Audit.QueueDriver != "memory" {
		t.Fatalf("默认驱动错误: %s/%s", cfg.Storage.Driver, cfg.Audit.QueueDriver)
	}
	if cfg.Audit.Workers != 2 {
		t.Fatalf("默认审计并发 = %d", cfg.Audit.Workers)
	}
	if cfg.Vault.PassphraseEnv != "SOVEREIGN_VAULT_PASSPHRASE" {
		t.Fatalf("默认口令环境变量 = %s", cfg.Vault.PassphraseEnv)
	}
	if cfg.Chains.DefaultChain != "ETH" {
		t.Fatalf("默认链 = %s", cfg.Chains.DefaultChain)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("默认数据目录 = %s", cfg.Runtime.DataDir)
	}
	if cfg.Vault.SealedFile != filepath.Join(dir, "data", "sovereign.enc") {
		t.Fatalf("默认密封文件 = %s", cfg.Vault.SealedFile)
	}
	if cfg.Treasury.MintingRatio != 10 {
		t.Fatalf("默认铸币比率 = %v", cfg.Treasury.MintingRatio)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sovereign.json")
	content := `{
  "chains": {"config_path": "chains.yaml"},
  "vault": {"sealed_file": "vault/sovereign.enc"},
  "runtime": {"data_dir": "/var/lib/sovereign"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Chains.ConfigPath != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("链配置路径 = %s", cfg.Chains.ConfigPath)
	}
	if cfg.Vault.SealedFile != filepath.Join(dir, "vault", "sovereign.enc") {
		t.Fatalf("密封文件路径 = %s", cfg.Vault.SealedFile)
	}
	// 绝对路径不做改写。
	if cfg.Runtime.DataDir != "/var/lib/sovereign" {
		t.Fatalf("数据目录 = %s", cfg.Runtime.DataDir)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("空路径应报错")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("缺失文件应报错")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("非法 JSON 应报错")
	}
}
