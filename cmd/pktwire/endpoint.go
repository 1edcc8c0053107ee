package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pktwire/pktwire/config"
	"github.com/pktwire/pktwire/transport"
	transgit "github.com/pktwire/pktwire/transport/git"
	transhttp "github.com/pktwire/pktwire/transport/http"
	transssh "github.com/pktwire/pktwire/transport/ssh"
)

var scpLike = regexp.MustCompile(`^(?:([^@/]+)@)?([^:/]+):(.*)$`)

// parseEndpoint accepts the same surface git itself does: a scheme URL
// (git://, http(s)://, ssh://) or the SCP-like "user@host:path" shorthand,
// which is always ssh.
func parseEndpoint(raw string) (*transport.Endpoint, error) {
	if !strings.Contains(raw, "://") {
		if m := scpLike.FindStringSubmatch(raw); m != nil {
			return &transport.Endpoint{Protocol: "ssh", User: m[1], Host: m[2], Path: m[3]}, nil
		}
		return nil, fmt.Errorf("pktwire: %q is not a recognized remote URI", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, usageError{fmt.Errorf("pktwire: invalid remote URI %q: %w", raw, err)}
	}

	var port int
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	return &transport.Endpoint{
		Protocol: u.Scheme,
		Host:     u.Hostname(),
		Port:     port,
		Path:     u.Path,
		User:     user,
		Password: pass,
	}, nil
}

// dialerFor picks the concrete transport.Dialer matching ep.Protocol,
// applying whatever the loaded config says about proxies and SSH paths.
func dialerFor(ep *transport.Endpoint, cfg *config.Config, c *cmd) (transport.Dialer, error) {
	switch ep.Protocol {
	case "git":
		return &transgit.Dialer{ProxyURL: cfg.Proxy.URL}, nil
	case "http", "https":
		return &transhttp.Dialer{}, nil
	case "ssh":
		known := cfg.SSH.KnownHosts
		if c.SSHKnown != "" {
			known = c.SSHKnown
		}
		return &transssh.Dialer{KnownHostsPath: known, SSHConfigPath: cfg.SSH.ConfigPath}, nil
	default:
		return nil, usageError{fmt.Errorf("pktwire: unsupported protocol %q", ep.Protocol)}
	}
}
