package solidfire

import (
	"fmt"
	"net/url"
	"strconv"
)

// EndpointConfig is the parsed form of a cluster endpoint string.
type EndpointConfig struct {
	MVIP     string // management virtual IP
	Login    string
	Password string
	Port     int
	URL      string // https://<mvip>:<port>
}

// ParseEndpoint parses an endpoint string of the form
//
//	https://<login>:<password>@<mvip>[:<port>]/json-rpc/<version>
//
// into an EndpointConfig. The port defaults to 443.
func ParseEndpoint(endpoint string) (*EndpointConfig, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be https", endpoint)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing credentials", endpoint)
	}

	password, ok := u.User.Password()
	if !ok || password == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing password", endpoint)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: bad port: %w", endpoint, err)
		}
	}

	return &EndpointConfig{
		MVIP:     host,
		Login:    u.User.Username(),
		Password: password,
		Port:     port,
		URL:      fmt.Sprintf("https://%s:%d", host, port),
	}, nil
}
