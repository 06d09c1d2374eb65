package chains

import (
	"os"
	"path/filepath"
	"testing"
)

func testDefinitions() Definitions {
	return Definitions{Chains: map[string]Definition{
		"ETH": {Kind: "evm", Network: "mainnet", Address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"},
		"BNB": {Kind: "evm", Network: "bsc", Address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"},
		"XRP": {Kind: "native", Network: "mainnet", Address: "rLW9gnQo7BQhU6igk5keqYnH3TVrCxGRzm", Memo: "2932723390"},
	}}
}

func TestNewRegistryRejectsInvalidEVMAddress(t *testing.T) {
	defs := Definitions{Chains: map[string]Definition{
		"ETH": {Kind: "evm", Address: "not-a-hex-address"},
	}}
	if _, err := NewRegistry(defs, "ETH"); err == nil {
		t.Fatalf("非法 EVM 地址应被拒绝")
	}
}

func TestNewRegistryRejectsMissingAddress(t *testing.T) {
	defs := Definitions{Chains: map[string]Definition{
		"SOL": {Kind: "native"},
	}}
	if _, err := NewRegistry(defs, ""); err == nil {
		t.Fatalf("缺少地址应被拒绝")
	}
}

func TestNewRegistryDefaultChainSelection(t *testing.T) {
	registry, err := NewRegistry(testDefinitions(), "")
	if err != nil {
		t.Fatalf("构造注册表失败: %v", err)
	}
	// 未指定默认链时取字典序最小的链。
	if registry.Default() != "BNB" {
		t.Fatalf("默认链 = %s, 期望 BNB", registry.Default())
	}

	registry, err = NewRegistry(testDefinitions(), "eth")
	if err != nil {
		t.Fatalf("构造注册表失败: %v", err)
	}
	if registry.Default() != "ETH" {
		t.Fatalf("默认链 = %s, 期望 ETH", registry.Default())
	}

	if _, err := NewRegistry(testDefinitions(), "DOGE"); err == nil {
		t.Fatalf("默认链未配置时应报错")
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	registry, err := NewRegistry(testDefinitions(), "ETH")
	if err != nil {
		t.Fatalf("构造注册表失败: %v", err)
	}

	name, def := registry.Resolve("xrp")
	if name != "XRP" || def.Memo != "2932723390" {
		t.Fatalf("已知链解析错误: %s %+v", name, def)
	}

	name, def = registry.Resolve("DOGE")
	if name != "ETH" {
		t.Fatalf("未知链应回落默认链, 实际 %s", name)
	}
	if def.Address != "0x742d35Cc6634C0532925a3b844Bc454e4438f44e" {
		t.Fatalf("回落链地址错误: %s", def.Address)
	}
}

func TestLoadDefinitionsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  ETH:
    kind: evm
    network: mainnet
    address: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
  XRP:
    kind: native
    network: mainnet
    address: "rLW9gnQo7BQhU6igk5keqYnH3TVrCxGRzm"
    memo: "2932723390"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("加载链配置失败: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("链数量 = %d, 期望 2", len(defs.Chains))
	}
	if defs.Chains["XRP"].Memo != "2932723390" {
		t.Fatalf("XRP 备注丢失")
	}

	if _, err := LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("缺失文件应报错")
	}

	defs, err = LoadDefinitions("")
	if err != nil || len(defs.Chains) != 0 {
		t.Fatalf("空路径应返回空定义: %v", err)
	}
}
