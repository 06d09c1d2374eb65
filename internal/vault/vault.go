package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Sovereign-Mint/internal/auth"
	xerrors "Sovereign-Mint/internal/errors"
)

const gcmTagSize = 16

// Entry 是地址簿中的一条收税地址。
type Entry struct {
	Address string `json:"address"`
	Memo    string `json:"memo,omitempty"`
	Network string `json:"network,omitempty"`
}

// Envelope 是落盘的密封格式，三段均为十六进制编码。
type Envelope struct {
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// ErrAccessDenied 表示调用者无权解封主权地址簿。
var ErrAccessDenied = xerrors.New(xerrors.CodeAccessDenied,
	"access denied: only the Agent-King or CEO may view sovereign addresses")

// ErrTampered 表示密封文件的认证标签校验失败。
var ErrTampered = xerrors.New(xerrors.CodeIntegrityFailure,
	"sovereign envelope authentication failed")

// Vault 保管密封的主权收税地址簿。
// 初始化幂等；读取需要通过注入的 Authorizer 鉴权。
type Vault struct {
	mu         sync.Mutex
	path       string
	unsealer   Unsealer
	authorizer auth.Authorizer
	seed       map[string]Entry
}

// New 构造金库实例。seed 仅在首次初始化时被密封落盘。
func New(path string, unsealer Unsealer, authorizer auth.Authorizer, seed map[string]Entry) (*Vault, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金库文件路径不能为空")
	}
	if unsealer == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金库缺少 Unsealer")
	}
	if authorizer == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金库缺少 Authorizer")
	}
	return &Vault{path: path, unsealer: unsealer, authorizer: authorizer, seed: seed}, nil
}

// Initialize 在密封文件缺失时加密种子地址簿并落盘。重复调用无副作用。
func (v *Vault) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := os.Stat(v.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "检查金库文件失败")
	}

	if len(v.seed) == 0 {
		return xerrors.New(xerrors.CodeInitializationFailure, "金库种子地址簿为空")
	}

	envelope, err := v.seal(ctx, v.seed)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化金库文件失败")
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建金库目录失败")
	}
	if err := os.WriteFile(v.path, encoded, 0o600); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入金库文件失败")
	}
	return nil
}

// Addresses 解封并返回完整地址簿。调用者必须持有读取主权地址的权限，
// 否则返回 ErrAccessDenied；认证标签不匹配作为硬错误向上传播。
func (v *Vault) Addresses(ctx context.Context, subject *auth.Subject) (map[string]Entry, error) {
	if err := v.authorizer.Authorize(ctx, subject, auth.PermReadSovereignAddresses); err != nil {
		return nil, ErrAccessDenied
	}
	return v.open(ctx)
}

// PayoutAddress 返回指定链的收税地址，供结算引擎进程内路由使用。
// 未知链由调用方负责回落到默认链。
func (v *Vault) PayoutAddress(ctx context.Context, chain string) (Entry, bool, error) {
	book, err := v.open(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := book[chain]
	return entry, ok, nil
}

func (v *Vault) seal(ctx context.Context, book map[string]Entry) (*Envelope, error) {
	aead, err := v.aead(ctx)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(book)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化地址簿失败")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "生成随机数失败")
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	// AES-GCM 输出为 密文||认证标签，拆开分段存储以匹配密封格式。
	data, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return &Envelope{
		IV:   hex.EncodeToString(nonce),
		Tag:  hex.EncodeToString(tag),
		Data: hex.EncodeToString(data),
	}, nil
}

func (v *Vault) open(ctx context.Context) (map[string]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "金库尚未初始化")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取金库文件失败")
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntegrityFailure, err, "金库文件格式非法")
	}

	nonce, err := hex.DecodeString(envelope.IV)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntegrityFailure, err, "金库 IV 非法")
	}
	tag, err := hex.DecodeString(envelope.Tag)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntegrityFailure, err, "金库认证标签非法")
	}
	data, err := hex.DecodeString(envelope.Data)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntegrityFailure, err, "金库密文非法")
	}

	aead, err := v.aead(ctx)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(tag) != gcmTagSize {
		return nil, ErrTampered
	}

	plaintext, err := aead.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		// 标签不匹配意味着密文被篡改，必须向上传播。
		return nil, ErrTampered
	}

	var book map[string]Entry
	if err := json.Unmarshal(plaintext, &book); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntegrityFailure, err, "解封后的地址簿非法")
	}
	return book, nil
}

func (v *Vault) aead(ctx context.Context) (cipher.AEAD, error) {
	key, err := v.unsealer.Key(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取金库密钥失败")
	}
	if len(key) != 32 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("金库密钥长度非法: %d", len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "构造 AES 失败")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "构造 GCM 失败")
	}
	return aead, nil
}
