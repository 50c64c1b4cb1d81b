package socketio

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/edumarques81/stellar-pocket/internal/version"
)

// SystemInfo describes the device to remote clients.
type SystemInfo struct {
	Host     string `json:"host"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Build    string `json:"build,omitempty"`
	Hardware string `json:"hardware"`
}

// GetSystemInfo collects host and hardware details.
func GetSystemInfo() SystemInfo {
	v := version.GetInfo()
	info := SystemInfo{
		Name:     v.Name,
		Version:  v.Version,
		Build:    v.GitCommit,
		Hardware: "unknown",
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Host = hostname
	}
	if f, err := os.Open("/proc/cpuinfo"); err == nil {
		if model := cpuModel(f); model != "" {
			info.Hardware = model
		}
		f.Close()
	}
	return info
}

// cpuModel returns the "Model" line of a /proc/cpuinfo listing.
func cpuModel(r io.Reader) string {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Model") {
			continue
		}
		if _, value, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
