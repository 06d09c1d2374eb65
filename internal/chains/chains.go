package chains

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	xerrors "Sovereign-Mint/internal/errors"
)

// Definitions models the structure of configs/chains.yaml.
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition describes a single payout chain entry.
type Definition struct {
	Kind        string `yaml:"kind"`
	Network     string `yaml:"network"`
	Address     string `yaml:"address"`
	Memo        string `yaml:"memo"`
	Description string `yaml:"description"`
}

// LoadDefinitions parses the YAML file containing payout chain metadata.
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Chains: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]Definition{}
	}
	return defs, nil
}

// Registry 管理以链名为键的收税链定义，并提供兜底链解析。
type Registry struct {
	defaultChain string
	chains       map[string]Definition
}

// NewRegistry 校验链定义并构造注册表。EVM 链地址必须通过十六进制校验。
func NewRegistry(defs Definitions, defaultChain string) (*Registry, error) {
	chains := make(map[string]Definition, len(defs.Chains))
	for name, def := range defs.Chains {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if strings.TrimSpace(def.Address) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("链 %s 缺少收税地址", name))
		}
		if strings.EqualFold(def.Kind, "evm") && !common.IsHexAddress(def.Address) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("链 %s 的 EVM 地址非法: %s", name, def.Address))
		}
		chains[name] = def
	}

	if len(chains) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何收税链")
	}

	defaultChain = strings.ToUpper(strings.TrimSpace(defaultChain))
	if defaultChain == "" {
		names := make([]string, 0, len(chains))
		for name := range chains {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := chains[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, chains: chains}, nil
}

// Default 返回兜底链名称。
func (r *Registry) Default() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// Lookup 返回指定链的定义。
func (r *Registry) Lookup(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.chains[strings.ToUpper(strings.TrimSpace(name))]
	return def, ok
}

// Resolve 返回指定链的定义，未知链回落到默认链。
func (r *Registry) Resolve(name string) (string, Definition) {
	if def, ok := r.Lookup(name); ok {
		return strings.ToUpper(strings.TrimSpace(name)), def
	}
	return r.defaultChain, r.chains[r.defaultChain]
}

// Names 返回全部链名，字典序排列。
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddressBook 导出链名到地址条目的映射，供金库密封使用。
func (r *Registry) AddressBook() map[string]Definition {
	if r == nil {
		return nil
	}
	book := make(map[string]Definition, len(r.chains))
	for name, def := range r.chains {
		book[name] = def
	}
	return book
}
