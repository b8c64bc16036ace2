// Package tlsutil 为出站连接（媒体服务器、TTS、LLM、Redis）提供统一的 TLS 设置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
