package pii

import (
	"regexp"
	"strings"
)

// Type PII 类型
type Type string

const (
	TypeEmail       Type = "email"
	TypePhone       Type = "phone"
	TypeSSN         Type = "ssn"
	TypeCreditCard  Type = "credit_card"
	TypeIPAddress   Type = "ip_address"
	TypeAPIKey      Type = "api_key"
	TypeBearerToken Type = "bearer_token"
	TypePassword    Type = "password"
	TypeDateOfBirth Type = "date_of_birth"
	TypeAddress     Type = "address"
)

// AllTypes 返回全部 PII 类型（固定扫描顺序）
func AllTypes() []Type {
	return []Type{
		TypeEmail,
		TypePhone,
		TypeSSN,
		TypeCreditCard,
		TypeIPAddress,
		TypeAPIKey,
		TypeBearerToken,
		TypePassword,
		TypeDateOfBirth,
		TypeAddress,
	}
}

// typePattern 单个 PII 类型的检测规则
type typePattern struct {
	piiType Type
	pattern *regexp.Regexp
}

// defaultTypePatterns 返回默认 PII 模式表，编译一次后进程内共享
func defaultTypePatterns() []typePattern {
	return []typePattern{
		{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{TypePhone, regexp.MustCompile(`(\+1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]?\d{4}\b|\b\d{10}\b`)},
		{TypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{TypeCreditCard, regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
		{TypeIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
		{TypeAPIKey, regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|secret[_-]?key)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{8,}|\bsk-[A-Za-z0-9_\-]{16,}\b`)},
		{TypeBearerToken, regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]{16,}\b`)},
		{TypePassword, regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)["']?\s*[:=]\s*["']?\S+`)},
		{TypeDateOfBirth, regexp.MustCompile(`(?i)\b(?:date\s+of\s+birth|dob|born\s+on|birthday)\s*[:=]?\s*\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)},
		{TypeAddress, regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z.\s]{1,30}\s(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|place|pl)\b`)},
	}
}

// fixedMask api_key / bearer_token 的固定宽度掩码
const fixedMask = "********"

// maskValue 根据 PII 类型对匹配值脱敏
func maskValue(piiType Type, value string) string {
	switch piiType {
	case TypeEmail:
		return maskEmail(value)
	case TypePhone:
		return maskKeepLastDigits(value, 4, "***-***-")
	case TypeSSN:
		return "***-**-****"
	case TypeCreditCard:
		return maskKeepLastDigits(value, 4, "****-****-****-")
	case TypeIPAddress:
		return maskIP(value)
	case TypeAPIKey:
		return maskAfterSeparator(value, fixedMask)
	case TypeBearerToken:
		return "Bearer " + fixedMask
	case TypePassword:
		return maskAfterSeparator(value, fixedMask)
	case TypeDateOfBirth:
		return maskDateOfBirth(value)
	case TypeAddress:
		return "[ADDRESS REDACTED]"
	default:
		return strings.Repeat("*", len(value))
	}
}

// maskEmail 保留本地部分首尾字符: john.doe@x.com -> j******e@x.com
func maskEmail(value string) string {
	at := strings.Index(value, "@")
	if at <= 0 {
		return strings.Repeat("*", len(value))
	}
	local, domain := value[:at], value[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + domain
}

// maskKeepLastDigits 只保留末 n 位数字
func maskKeepLastDigits(value string, n int, prefix string) string {
	var digits []byte
	for i := 0; i < len(value); i++ {
		if value[i] >= '0' && value[i] <= '9' {
			digits = append(digits, value[i])
		}
	}
	if len(digits) <= n {
		return strings.Repeat("*", len(value))
	}
	return prefix + string(digits[len(digits)-n:])
}

// maskIP 保留首段: 192.168.1.10 -> 192.***.***.***
func maskIP(value string) string {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return strings.Repeat("*", len(value))
	}
	return parts[0] + ".***.***.***"
}

// maskAfterSeparator 保留 key[:=] 文本前缀，掩盖取值部分。
// 无分隔符的裸令牌（如 sk- 开头）整体替换为固定掩码。
func maskAfterSeparator(value, mask string) string {
	for i := 0; i < len(value); i++ {
		if value[i] == ':' || value[i] == '=' {
			return value[:i+1] + mask
		}
	}
	return mask
}

// maskDateOfBirth 保留标签前缀，掩盖日期数字但保留分隔符
func maskDateOfBirth(value string) string {
	masked := []byte(value)
	started := false
	for i := 0; i < len(masked); i++ {
		if masked[i] >= '0' && masked[i] <= '9' {
			masked[i] = '*'
			started = true
		} else if started && masked[i] != '/' && masked[i] != '-' && masked[i] != '.' {
			break
		}
	}
	return string(masked)
}
