package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SumBytes 计算字节内容的哈希值，相同输入必定产生相同摘要
func SumBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SumFields 计算结构化事实的规范化哈希值，字段按调用方固定顺序传入
func SumFields(fields ...string) string {
	return SumBytes([]byte(strings.Join(fields, "\x1f")))
}
