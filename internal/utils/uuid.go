package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID 生成一个新的 UUID v7，用于扫描运行ID
func GenerateUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
