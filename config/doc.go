// Package config 提供 warmtransfer 的配置管理功能。
//
// 包含默认配置、YAML 文件加载、环境变量覆盖与配置校验。
// 环境变量统一使用 WARMTRANSFER_ 前缀，例如
// WARMTRANSFER_TRANSFER_CONSULTATION_DWELL=15s。
package config
