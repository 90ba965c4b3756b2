// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package tls generates self-signed certificate pairs for deployments that
// want HTTPS without bringing their own PKI.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultCertPath is where EnsureCertificates writes the certificate
	// when no explicit path is configured.
	DefaultCertPath = "certs/xl2wh.crt"
	// DefaultKeyPath is the companion private key path.
	DefaultKeyPath = "certs/xl2wh.key"
	// DefaultValidityYears is the validity period for generated certificates.
	DefaultValidityYears = 10
)

// Config holds configuration for certificate generation.
type Config struct {
	CertPath string
	KeyPath  string
	Logger   zerolog.Logger
}

// EnsureCertificates returns the configured certificate pair, generating a
// self-signed one first if either file is missing. An incomplete pair is
// regenerated as a whole; a key without its certificate is useless.
func EnsureCertificates(cfg Config) (certPath, keyPath string, err error) {
	certPath = cfg.CertPath
	keyPath = cfg.KeyPath
	if certPath == "" {
		certPath = DefaultCertPath
	}
	if keyPath == "" {
		keyPath = DefaultKeyPath
	}

	certExists := fileExists(certPath)
	keyExists := fileExists(keyPath)

	if certExists && keyExists {
		cfg.Logger.Debug().
			Str("cert", certPath).
			Str("key", keyPath).
			Msg("TLS certificates found")
		return certPath, keyPath, nil
	}

	if certExists || keyExists {
		cfg.Logger.Warn().
			Bool("cert_exists", certExists).
			Bool("key_exists", keyExists).
			Msg("incomplete TLS certificate pair, regenerating both")
	}

	cfg.Logger.Info().
		Str("cert", certPath).
		Str("key", keyPath).
		Msg("generating self-signed TLS certificates")

	// Include the host's network IPs as SANs so clients on the LAN can
	// verify the certificate, not just localhost.
	networkIPs, err := GetNetworkIPs()
	if err != nil {
		cfg.Logger.Warn().
			Err(err).
			Msg("network IP detection failed, certificate will only cover localhost")
		networkIPs = nil
	}

	if err := GenerateSelfSignedWithIPs(certPath, keyPath, DefaultValidityYears, networkIPs, nil); err != nil {
		return "", "", fmt.Errorf("generate self-signed certificates: %w", err)
	}

	cfg.Logger.Info().
		Str("cert", certPath).
		Str("key", keyPath).
		Int("validity_years", DefaultValidityYears).
		Int("network_ips", len(networkIPs)).
		Msg("self-signed TLS certificates generated")

	return certPath, keyPath, nil
}

// GenerateSelfSigned generates a self-signed certificate pair covering
// localhost only.
func GenerateSelfSigned(certPath, keyPath string, validityYears int) error {
	return GenerateSelfSignedWithIPs(certPath, keyPath, validityYears, nil, nil)
}

// GenerateSelfSignedWithIPs generates a self-signed ECDSA P-256 certificate.
// Additional IPs and DNS names are merged and deduplicated with the default
// localhost entries.
func GenerateSelfSignedWithIPs(certPath, keyPath string, validityYears int, additionalIPs []net.IP, additionalDNS []string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0750); err != nil {
		return fmt.Errorf("create cert directory: %w", err)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"xl2wh Self-Signed"},
			CommonName:   "xl2wh",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(validityYears, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           mergeIPs(additionalIPs),
		DNSNames:              mergeDNS(additionalDNS),
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", derBytes, 0644); err != nil {
		return err
	}

	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	return writePEM(keyPath, "EC PRIVATE KEY", privBytes, 0600)
}

// mergeIPs combines the localhost defaults with additional IPs, dropping
// nils and duplicates.
func mergeIPs(additional []net.IP) []net.IP {
	defaults := []net.IP{
		net.ParseIP("127.0.0.1"),
		net.ParseIP("::1"),
		net.ParseIP("0.0.0.0"),
		net.ParseIP("::"),
	}

	seen := make(map[string]bool)
	out := make([]net.IP, 0, len(defaults)+len(additional))
	for _, ip := range append(defaults, additional...) {
		if ip == nil || seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		out = append(out, ip)
	}
	return out
}

// mergeDNS combines the default hostnames with additional DNS names,
// dropping empties and duplicates.
func mergeDNS(additional []string) []string {
	defaults := []string{
		"localhost",
		"localhost.localdomain",
		"xl2wh",
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(defaults)+len(additional))
	for _, name := range append(defaults, additional...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// writePEM encodes a single PEM block to path with the given mode.
func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	// #nosec G304 -- operator-supplied path
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s file: %w", blockType, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", blockType, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s file: %w", blockType, err)
	}
	return nil
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// GetNetworkIPs returns all non-loopback, non-link-local addresses of the
// host's up interfaces. These become SANs on generated certificates.
func GetNetworkIPs() ([]net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("get network interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
				continue
			}

			ips = append(ips, ip)
		}
	}

	return ips, nil
}
