package netutil

import (
	"errors"
	"fmt"
	"net"
)

// SelectBindAddr picks the preferred bind address when it is free, otherwise
// the first available fallback.
func SelectBindAddr(preferred string, fallbacks []string) (string, error) {
	candidates := make([]string, 0, len(fallbacks)+1)
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	candidates = append(candidates, fallbacks...)

	for _, addr := range candidates {
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", addr, err)
		}
		if ok {
			return addr, nil
		}
	}

	return "", errors.New("no available api bind addresses")
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
