package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gitdb/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义符合 DAG-CBOR 规范的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 时间格式化为 Unix 整数，禁止 Tag 0/1
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义符合 DAG-CBOR 规范的解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// 目录条目数可能很多，所以数组上限放宽，嵌套深度仍然收紧
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	// --- 规范性配置 (DAG-CBOR Strictness) ---
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash 和序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return CalculateBlobHash(data), data, nil
}

// CalculateBlobHash 计算原始数据的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	hashBytes := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(hashBytes[:]))
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// PeekType 读取序列化对象的类型标记
// 解不出 CBOR 头的数据视为 Blob
func PeekType(data []byte) ObjectType {
	var header struct {
		TypeVal ObjectType `cbor:"t"`
	}
	if err := DecodeObject(data, &header); err != nil {
		return TypeBlob
	}
	switch header.TypeVal {
	case TypeTree, TypeCommit:
		return header.TypeVal
	default:
		return TypeBlob
	}
}
