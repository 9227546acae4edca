package tg

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

const (
	dialTimeout = 3 * time.Second
	proxyTimeout = 5 * time.Second
)

func isIPv6Literal(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}

func isIPv4Literal(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}

func dial(network, addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// checkNetwork только пишет в лог: TDLib всё равно попробует подключиться сам
func checkNetwork(logger *slog.Logger, proxyCfg *ports.ProxyConfig) {
	if err := dial("tcp4", "8.8.8.8:53", dialTimeout); err != nil {
		logger.Warn("IPv4 seems not working", "error", err)
	} else {
		logger.Debug("IPv4 OK")
	}

	if err := dial("tcp6", "[2606:4700:4700::1111]:53", dialTimeout); err != nil {
		logger.Warn("IPv6 seems not working", "error", err)
	} else {
		logger.Debug("IPv6 OK")
	}

	checkProxy(logger, proxyCfg)
}

func checkProxy(logger *slog.Logger, proxyCfg *ports.ProxyConfig) {
	if proxyCfg == nil || !proxyCfg.Enabled {
		logger.Info("proxy disabled, skipping check")
		return
	}

	addr := net.JoinHostPort(proxyCfg.Server, strconv.Itoa(int(proxyCfg.Port)))

	for _, network := range proxyNetworks(proxyCfg.Server) {
		err := dial(network, addr, proxyTimeout)
		if err == nil {
			logger.Info("proxy reachable", "network", network, "addr", addr)
			return
		}
		logger.Warn("proxy dial failed", "network", network, "addr", addr, "error", err)
	}

	logger.Error("proxy unreachable", "addr", addr)
}

// для hostname пробуем сначала IPv6, потом IPv4
func proxyNetworks(host string) []string {
	switch {
	case isIPv6Literal(host):
		return []string{"tcp6"}
	case isIPv4Literal(host):
		return []string{"tcp4"}
	default:
		return []string{"tcp6", "tcp4"}
	}
}

func describeProxy(p *ports.ProxyConfig) string {
	if p == nil || !p.Enabled {
		return "none"
	}
	return fmt.Sprintf("socks5://%s", net.JoinHostPort(p.Server, strconv.Itoa(int(p.Port))))
}
