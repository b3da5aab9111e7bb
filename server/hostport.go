package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// encodeHostPort renders an IPv4 address and port in the PASV/PORT form
// "h1,h2,h3,h4,p1,p2", with the port split into big-endian bytes.
func encodeHostPort(ip net.IP, port int) (string, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return "", fmt.Errorf("%w: %s is not an IPv4 address", ErrMalformedArgument, ip)
	}
	if port < 0 || port > 0xffff {
		return "", fmt.Errorf("%w: port %d out of range", ErrMalformedArgument, port)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d",
		ip4[0], ip4[1], ip4[2], ip4[3], port>>8, port&0xff), nil
}

// parseHostPort is the inverse of encodeHostPort. Every field must be a
// decimal number in 0..255.
func parseHostPort(arg string) (net.IP, int, error) {
	parts := strings.Split(strings.TrimSpace(arg), ",")
	if len(parts) != 6 {
		return nil, 0, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformedArgument, len(parts))
	}

	var b [6]byte
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: field %d: %q", ErrMalformedArgument, i+1, part)
		}
		b[i] = byte(n)
	}

	ip := net.IPv4(b[0], b[1], b[2], b[3])
	port := int(b[4])<<8 | int(b[5])
	return ip, port, nil
}
