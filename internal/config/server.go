// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// BindListenAddr replaces the host part of a listen address when it is of the
// form ":PORT" or empty. Explicit host:port values are left untouched.
// Supports "if:<name>" to bind to the first non-loopback IPv4 of an interface.
func BindListenAddr(listenAddr, bind string) (string, error) {
	if bind == "" {
		return listenAddr, nil
	}

	if listenAddr == "" || listenAddr[0] == ':' {
		port := listenAddr
		if port == "" {
			port = ":0"
		}

		host := bind
		if len(bind) > 3 && bind[:3] == "if:" {
			ifName := bind[3:]
			iface, err := net.InterfaceByName(ifName)
			if err != nil {
				return "", fmt.Errorf("resolve interface %q: %w", ifName, err)
			}
			addrs, err := iface.Addrs()
			if err != nil {
				return "", fmt.Errorf("list addrs for %q: %w", ifName, err)
			}
			found := false
			for _, a := range addrs {
				var ip net.IP
				switch v := a.(type) {
				case *net.IPNet:
					ip = v.IP
				case *net.IPAddr:
					ip = v.IP
				}
				if ip == nil || ip.IsLoopback() || ip.To4() == nil {
					continue
				}
				host = ip.String()
				found = true
				break
			}
			if !found {
				return "", fmt.Errorf("no suitable IPv4 on interface %q", ifName)
			}
		}

		return net.JoinHostPort(host, port[1:]), nil
	}

	return listenAddr, nil
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header's keys and values
	MaxHeaderBytes int

	// MaxConns caps concurrently accepted connections; 0 disables the cap
	MaxConns int

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration
}

const (
	// Default server timeouts. Reads stay generous because whole workbooks
	// arrive in a single multipart request.
	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = 0 // 0 = no timeout, analysis responses can be large
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20 // 1 MB
	defaultMaxConns        = 0
	defaultShutdownTimeout = 15 * time.Second
	fallbackListenAddr     = ":8080"
)

// ParseServerConfig reads server configuration from environment variables.
// It returns a ServerConfig with sensible defaults that can be overridden via ENV.
func ParseServerConfig() ServerConfig {
	return ParseServerConfigWith(ServerFileConfig{})
}

// ParseServerConfigWith resolves server config with explicit precedence:
// ENV > file overlay > built-in default.
func ParseServerConfigWith(overlay ServerFileConfig) ServerConfig {
	base := ServerConfig{
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
		IdleTimeout:     defaultIdleTimeout,
		MaxHeaderBytes:  defaultMaxHeaderBytes,
		MaxConns:        defaultMaxConns,
		ShutdownTimeout: defaultShutdownTimeout,
	}
	if overlay.ReadTimeout > 0 {
		base.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.WriteTimeout > 0 {
		base.WriteTimeout = overlay.WriteTimeout
	}
	if overlay.IdleTimeout > 0 {
		base.IdleTimeout = overlay.IdleTimeout
	}
	if overlay.MaxHeaderBytes > 0 {
		base.MaxHeaderBytes = overlay.MaxHeaderBytes
	}
	if overlay.MaxConns > 0 {
		base.MaxConns = overlay.MaxConns
	}
	if overlay.ShutdownTimeout > 0 {
		base.ShutdownTimeout = overlay.ShutdownTimeout
	}

	listen := strings.TrimSpace(ParseString("XL2WH_LISTEN", ""))
	if listen == "" {
		if strings.TrimSpace(overlay.ListenAddr) != "" {
			listen = overlay.ListenAddr
		} else {
			listen = fallbackListenAddr
		}
	}

	maxHeaderBytes := ParseInt("XL2WH_SERVER_MAX_HEADER_BYTES", base.MaxHeaderBytes)
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = base.MaxHeaderBytes
	}

	shutdownTimeout := ParseDuration("XL2WH_SERVER_SHUTDOWN_TIMEOUT", base.ShutdownTimeout)
	if shutdownTimeout < 3*time.Second {
		shutdownTimeout = 3 * time.Second
	}

	maxConns := ParseInt("XL2WH_SERVER_MAX_CONNS", base.MaxConns)
	if maxConns < 0 {
		maxConns = 0
	}

	return ServerConfig{
		ListenAddr:      listen,
		ReadTimeout:     ParseDuration("XL2WH_SERVER_READ_TIMEOUT", base.ReadTimeout),
		WriteTimeout:    ParseDuration("XL2WH_SERVER_WRITE_TIMEOUT", base.WriteTimeout),
		IdleTimeout:     ParseDuration("XL2WH_SERVER_IDLE_TIMEOUT", base.IdleTimeout),
		MaxHeaderBytes:  maxHeaderBytes,
		MaxConns:        maxConns,
		ShutdownTimeout: shutdownTimeout,
	}
}
