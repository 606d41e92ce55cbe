package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	authztls "github.com/polisai/polis-authz/internal/tls"
)

func newCertCmd() *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate helpers for the gRPC listener",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed server certificate for development",
		Args:  cobra.NoArgs,
		RunE:  runCertGenerate,
	}
	generateCmd.Flags().String("cn", "localhost", "Common name for the certificate")
	generateCmd.Flags().String("org", "Polis", "Organization name")
	generateCmd.Flags().String("dns", "", "Comma-separated list of DNS names (SANs)")
	generateCmd.Flags().String("ips", "", "Comma-separated list of IP addresses")
	generateCmd.Flags().Duration("valid-for", 365*24*time.Hour, "Certificate validity duration")
	generateCmd.Flags().Int("key-size", 2048, "RSA key size in bits")
	generateCmd.Flags().String("output-dir", ".", "Output directory for certificates")

	certCmd.AddCommand(generateCmd)
	return certCmd
}

func runCertGenerate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	commonName, _ := flags.GetString("cn")
	org, _ := flags.GetString("org")
	dnsNames, _ := flags.GetString("dns")
	ipList, _ := flags.GetString("ips")
	validFor, _ := flags.GetDuration("valid-for")
	keySize, _ := flags.GetInt("key-size")
	outputDir, _ := flags.GetString("output-dir")

	opts := authztls.CertificateGenerationOptions{
		CommonName: commonName,
		ValidFor:   validFor,
		KeySize:    keySize,
		DNSNames:   splitList(dnsNames),
	}
	if org != "" {
		opts.Organization = []string{org}
	}
	for _, raw := range splitList(ipList) {
		ip := net.ParseIP(raw)
		if ip == nil {
			return fmt.Errorf("invalid IP address %q", raw)
		}
		opts.IPAddresses = append(opts.IPAddresses, ip)
	}

	certPEM, keyPEM, err := authztls.GenerateSelfSignedCertificate(opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	certFile := filepath.Join(outputDir, "tls.crt")
	keyFile := filepath.Join(outputDir, "tls.key")
	if err := authztls.WriteCertificateFiles(certPEM, keyPEM, certFile, keyFile); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Certificate: %s\nPrivate key: %s\n", certFile, keyFile)
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
