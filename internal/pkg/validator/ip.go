package validator

import (
	"net/netip"
	"strings"
)

// NormalizeIP 规范化客户端 IP：去掉 IPv6 zone，IPv4-mapped 地址还原为 IPv4，非法地址返回空串
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if idx := strings.IndexByte(ip, '%'); idx != -1 {
		ip = ip[:idx]
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

// GetIPOrDefault 获取有效IP或返回默认值
func GetIPOrDefault(ip, defaultIP string) string {
	if normalized := NormalizeIP(ip); normalized != "" {
		return normalized
	}
	return defaultIP
}
