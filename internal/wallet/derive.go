package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// 地址派生盐。派生只用于生成确定性的展示地址，不承担真实签名职责。
const deriveSalt = "SOVEREIGN-AGENT-PRIV"

func deriveSeed(agentID, chain string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", deriveSalt, agentID, chain)))
	return hex.EncodeToString(sum[:])
}

func deriveEVMAddress(agentID string) string {
	sum := sha256.Sum256([]byte(deriveSeed(agentID, "ETH") + "ETH-PUBLIC"))
	encoded := hex.EncodeToString(sum[:])
	return "0x" + encoded[len(encoded)-40:]
}

func deriveBTCAddress(agentID string) string {
	sum := sha256.Sum256([]byte(deriveSeed(agentID, "BTC") + "BTC-P2SH"))
	encoded := hex.EncodeToString(sum[:])
	raw, _ := hex.DecodeString("05" + encoded[:40])
	b58 := toBase58(raw)
	if len(b58) > 33 {
		b58 = b58[1:33]
	}
	return "3" + b58
}

func deriveSOLAddress(agentID string) string {
	sum := sha256.Sum256([]byte(deriveSeed(agentID, "SOL") + "SOL-ED25519"))
	return toBase58(sum[:])
}

func deriveXRPAddress(agentID string) string {
	sum := sha256.Sum256([]byte(deriveSeed(agentID, "XRP") + "XRP-SECP"))
	encoded := hex.EncodeToString(sum[:])
	raw, _ := hex.DecodeString(encoded[:40])
	b58 := toBase58(raw)
	if len(b58) > 33 {
		b58 = b58[:33]
	}
	return "r" + b58
}

// XRP 备注必须是数字串。
func deriveXRPMemo(agentID string) string {
	var hash uint32
	for _, c := range agentID {
		hash = hash*31 + uint32(c)
	}
	memo := fmt.Sprintf("%010d", hash)
	if len(memo) > 10 {
		memo = memo[:10]
	}
	return memo
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func toBase58(raw []byte) string {
	num := new(big.Int).SetBytes(raw)
	base := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		out = append([]byte{base58Alphabet[mod.Int64()]}, out...)
	}
	for _, b := range raw {
		if b != 0 {
			break
		}
		out = append([]byte{'1'}, out...)
	}
	if len(out) == 0 {
		return "1"
	}
	return string(out)
}

// NewWallet 以智能体 ID 为种子生成确定性钱包。
// BNB 与 ETH 共用同一个 EVM 地址。
func NewWallet(agentID string) *Wallet {
	evm := deriveEVMAddress(agentID)
	return &Wallet{
		AgentID:   agentID,
		CreatedAt: time.Now().Unix(),
		Chains: map[string]*ChainBalance{
			"ETH": {Address: evm},
			"BNB": {Address: evm},
			"BTC": {Address: deriveBTCAddress(agentID)},
			"SOL": {Address: deriveSOLAddress(agentID)},
			"XRP": {Address: deriveXRPAddress(agentID), Memo: deriveXRPMemo(agentID)},
		},
		TaxComplianceScore: 100,
		Transactions:       []Transaction{},
	}
}
