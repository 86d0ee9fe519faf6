package daemon

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit := renderUnit("/usr/bin/hxstat", "/etc/hxstat.json", "/run/hxstat.sock")
	want := "ExecStart=/usr/bin/hxstat daemon --config /etc/hxstat.json --daemon-socket /run/hxstat.sock"
	if !strings.Contains(unit, want) {
		t.Fatalf("expected %q in\n%s", want, unit)
	}
	if strings.Contains(unit, "/path/to") {
		t.Fatalf("unreplaced placeholder in\n%s", unit)
	}
}

func TestInstallUninstall(t *testing.T) {
	origPath, origCtl := unitPath, systemctl
	defer func() { unitPath, systemctl = origPath, origCtl }()

	unitPath = filepath.Join(t.TempDir(), "systemd", "hxstat.service")
	var calls [][]string
	systemctl = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}

	if err := Install("/etc/hxstat.json", "/run/hxstat.sock"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(unitPath); err != nil {
		t.Fatalf("unit not written: %v", err)
	}

	if err := Uninstall(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Fatalf("unit not removed: %v", err)
	}

	want := [][]string{
		{"daemon-reload"},
		{"enable", "--now", "hxstat.service"},
		{"disable", "--now", "hxstat.service"},
		{"daemon-reload"},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("got systemctl calls %v, want %v", calls, want)
	}
}
