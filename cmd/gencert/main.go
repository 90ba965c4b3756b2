// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// SPDX-License-Identifier: MIT

// Command gencert generates self-signed TLS certificates for xl2wh.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ManuGH/xl2wh/internal/tls"
)

func main() {
	certPath := flag.String("cert", tls.DefaultCertPath, "Path to certificate file")
	keyPath := flag.String("key", tls.DefaultKeyPath, "Path to key file")
	years := flag.Int("years", tls.DefaultValidityYears, "Certificate validity in years")
	hosts := flag.String("hosts", "", "Comma-separated extra SANs (DNS names or IP addresses)")
	flag.Parse()

	dns, ips := splitHosts(*hosts)
	if err := tls.GenerateSelfSignedWithIPs(*certPath, *keyPath, *years, ips, dns); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Self-signed TLS certificates generated:\n")
	fmt.Printf("   📄 Certificate: %s\n", *certPath)
	fmt.Printf("   🔑 Private Key: %s\n", *keyPath)
	fmt.Printf("   ⏱️  Valid for: %d years\n", *years)
	if len(dns)+len(ips) > 0 {
		fmt.Printf("   🌐 Extra SANs: %s\n", *hosts)
	}
}

func splitHosts(list string) (dns []string, ips []net.IP) {
	for _, h := range strings.Split(list, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
			continue
		}
		dns = append(dns, h)
	}
	return dns, ips
}
