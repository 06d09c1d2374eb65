package vault

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"strings"
)

// Unsealer 提供解封金库所需的对称密钥。核心代码只依赖这一抽象，
// 生产环境可以接外部 KMS，测试环境用口令派生。
type Unsealer interface {
	Key(ctx context.Context) ([]byte, error)
}

// PassphraseUnsealer 通过 SHA-256 从口令派生 32 字节密钥。
type PassphraseUnsealer struct {
	passphrase string
}

// NewPassphraseUnsealer 构造口令派生的 Unsealer。
func NewPassphraseUnsealer(passphrase string) (*PassphraseUnsealer, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("金库口令不能为空")
	}
	return &PassphraseUnsealer{passphrase: passphrase}, nil
}

// NewPassphraseUnsealerFromEnv 从环境变量读取口令。
func NewPassphraseUnsealerFromEnv(envName string) (*PassphraseUnsealer, error) {
	value := os.Getenv(envName)
	if strings.TrimSpace(value) == "" {
		return nil, errors.New("环境变量 " + envName + " 未设置金库口令")
	}
	return NewPassphraseUnsealer(value)
}

// Key 返回派生密钥。
func (u *PassphraseUnsealer) Key(_ context.Context) ([]byte, error) {
	sum := sha256.Sum256([]byte(u.passphrase))
	return sum[:], nil
}
