package domain

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789abcdef"

// PublicationsTopic is the transport topic carrying publication announcements.
func PublicationsTopic(domainID uint32) string {
	return fmt.Sprintf("dynsub_%d_builtin_publications", domainID)
}

// TypesTopic is the transport topic carrying type objects.
func TypesTopic(domainID uint32) string {
	return fmt.Sprintf("dynsub_%d_builtin_types", domainID)
}

// RequestsTopic is the transport topic carrying re-announcement requests.
func RequestsTopic(domainID uint32) string {
	return fmt.Sprintf("dynsub_%d_builtin_requests", domainID)
}

// DataTopic maps a domain topic name onto a transport topic. ASCII letters
// and digits pass through; every other byte becomes "-" plus two hex digits,
// which keeps the mapping injective and the result valid on every broker.
func DataTopic(domainID uint32, name string) string {
	var b strings.Builder
	prefix := fmt.Sprintf("dynsub_%d_data_", domainID)
	b.Grow(len(prefix) + len(name)*3)
	b.WriteString(prefix)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('-')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}
