package proxycfg

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"text/template"

	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

const DefaultBucketPrefix = "bucket"

// Params are the inputs of a proxy configuration. Addresses are host:port.
type Params struct {
	StoreAddress  string
	ListenAddress string
	OriginAddress string
	BucketPrefix  string
	Buckets       []string
}

var configTemplate = template.Must(template.New("haproxy").Parse(`# haproxy test configuration
global
	s3.enable
	s3.redis_ip {{ .StoreHost }}
	s3.redis_port {{ .StorePort }}
	s3.bucket_prefix {{ .BucketPrefix }}
{{- range .Buckets }}
	s3.buckets {{ . }}
{{- end }}

defaults
	mode    http
	retries 3

listen  fooapp {{ .ListenAddress }}
	balance roundrobin
	server  app1_1 {{ .OriginAddress }}
`))

type templateData struct {
	StoreHost     string
	StorePort     int
	BucketPrefix  string
	Buckets       []string
	ListenAddress string
	OriginAddress string
}

// Render produces the haproxy configuration enabling the s3 queueing feature
// against the store and a single load-balanced listener forwarding to the origin.
func Render(p Params) (string, error) {
	storeHost, storePort, err := splitAddress("store address", p.StoreAddress)
	if err != nil {
		return "", err
	}
	if _, _, err := splitAddress("listen address", p.ListenAddress); err != nil {
		return "", err
	}
	if _, _, err := splitAddress("origin address", p.OriginAddress); err != nil {
		return "", err
	}
	if len(p.Buckets) == 0 {
		return "", srverrors.NewInvalidArgumentError("buckets", "at least one bucket is required")
	}
	for _, b := range p.Buckets {
		if b == "" || strings.ContainsAny(b, " \t\n/") {
			return "", srverrors.NewInvalidArgumentError("buckets", fmt.Sprintf("invalid bucket name %q", b))
		}
	}

	prefix := p.BucketPrefix
	if prefix == "" {
		prefix = DefaultBucketPrefix
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, templateData{
		StoreHost:     storeHost,
		StorePort:     storePort,
		BucketPrefix:  prefix,
		Buckets:       p.Buckets,
		ListenAddress: p.ListenAddress,
		OriginAddress: p.OriginAddress,
	}); err != nil {
		return "", fmt.Errorf("failed to render proxy configuration: %w", err)
	}
	return buf.String(), nil
}

// WriteFile persists a rendered configuration to a new temporary file in dir
// (os.TempDir when empty) and returns its path.
func WriteFile(dir, id, text string) (string, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("haproxy-%s-*.cfg", id))
	if err != nil {
		return "", fmt.Errorf("failed to create proxy configuration file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write proxy configuration file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close proxy configuration file: %w", err)
	}
	return f.Name(), nil
}

// Remove discards a configuration file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func splitAddress(name, addr string) (string, int, error) {
	if addr == "" {
		return "", 0, srverrors.NewInvalidArgumentError(name, "missing")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, srverrors.NewInvalidArgumentError(name, err.Error())
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, srverrors.NewInvalidArgumentError(name, fmt.Sprintf("invalid port %q", portStr))
	}
	if host == "" {
		return "", 0, srverrors.NewInvalidArgumentError(name, "missing host")
	}
	return host, port, nil
}
