package socketio

import (
	"strings"
	"testing"
)

func TestCPUModel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"raspberry pi", "processor\t: 0\nModel\t\t: Raspberry Pi Zero 2 W Rev 1.0\n", "Raspberry Pi Zero 2 W Rev 1.0"},
		{"no model line", "processor\t: 0\nmodel name\t: Intel\n", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cpuModel(strings.NewReader(tt.input)); got != tt.want {
				t.Errorf("cpuModel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	if info.Name != "Stellar Pocket" || info.Version == "" || info.Hardware == "" {
		t.Errorf("GetSystemInfo() = %+v", info)
	}
}
