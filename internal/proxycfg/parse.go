package proxycfg

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Parse reads back the parameters of a configuration produced by Render. It
// understands only the directives Render emits.
func Parse(text string) (Params, error) {
	var (
		p         Params
		storeHost string
		storePort string
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch {
		case fields[0] == "s3.redis_ip" && len(fields) == 2:
			storeHost = fields[1]
		case fields[0] == "s3.redis_port" && len(fields) == 2:
			storePort = fields[1]
		case fields[0] == "s3.bucket_prefix" && len(fields) == 2:
			p.BucketPrefix = fields[1]
		case fields[0] == "s3.buckets" && len(fields) == 2:
			p.Buckets = append(p.Buckets, fields[1])
		case fields[0] == "listen" && len(fields) == 3:
			p.ListenAddress = fields[2]
		case fields[0] == "server" && len(fields) == 3:
			p.OriginAddress = fields[2]
		}
	}
	if err := scanner.Err(); err != nil {
		return Params{}, err
	}

	if storeHost == "" || storePort == "" {
		return Params{}, fmt.Errorf("store address not found in configuration")
	}
	if _, err := strconv.Atoi(storePort); err != nil {
		return Params{}, fmt.Errorf("invalid store port %q", storePort)
	}
	p.StoreAddress = net.JoinHostPort(storeHost, storePort)

	if p.ListenAddress == "" || p.OriginAddress == "" {
		return Params{}, fmt.Errorf("listen section not found in configuration")
	}
	return p, nil
}
