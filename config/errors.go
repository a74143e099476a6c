package config

import "github.com/ceyewan/gatelimit/xerrors"

// ErrValidationFailed 配置验证失败
var ErrValidationFailed = xerrors.New("configuration validation failed")

// IsInvalidInput 检查错误是否为配置格式无效或验证失败
func IsInvalidInput(err error) bool {
	return xerrors.Is(err, ErrValidationFailed) || xerrors.Is(err, xerrors.ErrInvalidInput)
}
