package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"calendarcore/internal/config"
	"calendarcore/internal/core"
)

func withConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	vars := map[string]string{
		"CALENDARCORE_STORAGE_DRIVER":  "sqlite",
		"CALENDARCORE_SQLITE_PATH":     filepath.Join(dir, "ledger.db"),
		"CALENDARCORE_ARCHIVE_DRIVER":  "fs",
		"CALENDARCORE_ARCHIVE_FS_ROOT": filepath.Join(dir, "archive"),
		"CALENDARCORE_LOG_LEVEL":       "warn",
	}
	prev := loadConfig
	loadConfig = func() (config.Config, error) { return config.LoadFrom(vars) }
	t.Cleanup(func() { loadConfig = prev })
}

func invoke(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustInvoke(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := invoke(args...)
	if code != 0 {
		t.Fatalf("%v exited %d: %s", args, code, errOut)
	}
	return out
}

func TestCLIMeetingLifecycle(t *testing.T) {
	withConfig(t)

	var created core.Meeting
	out := mustInvoke(t, "create", "-organizer", "0xorg", "-participants", "0xa,0xb", "-date", "7", "-start", "900", "-end", "1000", "-agenda", "standup")
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output: %v\n%s", err, out)
	}
	if created.ID != 1 || created.Agenda != "standup" || len(created.Participants) != 2 {
		t.Fatalf("unexpected meeting %+v", created)
	}

	var avail availability
	out = mustInvoke(t, "available", "-who", "0xa", "-date", "7", "-start", "930", "-end", "945")
	if err := json.Unmarshal([]byte(out), &avail); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if avail.Available || len(avail.Conflicts) != 1 || avail.Conflicts[0].ID != created.ID {
		t.Fatalf("expected conflict with meeting 1, got %+v", avail)
	}

	code, _, errOut := invoke("reschedule", "-caller", "0xa", "-id", "1", "-date", "7", "-start", "1", "-end", "2")
	if code != 1 || !strings.Contains(errOut, "not_organizer") {
		t.Fatalf("expected not_organizer failure, got %d %s", code, errOut)
	}

	mustInvoke(t, "add", "-caller", "0xorg", "-id", "1", "-participants", "0xb,0xc")
	var listed []core.Meeting
	out = mustInvoke(t, "list", "-who", "0xc")
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Participants) != 3 {
		t.Fatalf("expected 0xc to see the meeting with 3 participants, got %+v", listed)
	}

	mustInvoke(t, "cancel", "-caller", "0xorg", "-id", "1")
	out = mustInvoke(t, "available", "-who", "0xa", "-date", "7", "-start", "930", "-end", "945")
	if err := json.Unmarshal([]byte(out), &avail); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if !avail.Available || len(avail.Conflicts) != 0 {
		t.Fatalf("cancelled meeting must not block, got %+v", avail)
	}

	code, _, errOut = invoke("cancel", "-caller", "0xorg", "-id", "1")
	if code != 1 || !strings.Contains(errOut, "already_cancelled") {
		t.Fatalf("expected already_cancelled, got %d %s", code, errOut)
	}
	code, _, errOut = invoke("get", "-id", "42")
	if code != 1 || !strings.Contains(errOut, "not_found") {
		t.Fatalf("expected not_found, got %d %s", code, errOut)
	}
}

func TestCLIArchiveAndRestore(t *testing.T) {
	withConfig(t)
	mustInvoke(t, "create", "-organizer", "0xorg", "-participants", "0xa", "-start", "1", "-end", "2")
	mustInvoke(t, "archive", "-key", "snap-1.json")
	if code, _, _ := invoke("archive", "-key", "snap-1.json"); code != 1 {
		t.Fatalf("expected rewrite of archive key to fail, got %d", code)
	}
	mustInvoke(t, "create", "-organizer", "0xorg", "-participants", "0xb", "-start", "3", "-end", "4")

	out := mustInvoke(t, "restore", "-key", "snap-1.json")
	if strings.TrimSpace(out) != "restored 1 meetings, last id 2" {
		t.Fatalf("unexpected restore output %q", out)
	}
	var listed []core.Meeting
	if err := json.Unmarshal([]byte(mustInvoke(t, "list")), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != 1 {
		t.Fatalf("expected only meeting 1 after restore, got %+v", listed)
	}
	var next core.Meeting
	if err := json.Unmarshal([]byte(mustInvoke(t, "create", "-organizer", "0xorg", "-participants", "0xa", "-start", "5", "-end", "6")), &next); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if next.ID != 3 {
		t.Fatalf("identifier 2 must not be reissued, got %d", next.ID)
	}
}

func TestCLIGlobalFlags(t *testing.T) {
	withConfig(t)
	mustInvoke(t, "create", "-organizer", "0xorg", "-participants", "0xa", "-start", "10", "-end", "20")

	code, _, errOut := invoke("-overlap-warnings", "-metrics", "create", "-organizer", "0xorg", "-participants", "0xb", "-start", "15", "-end", "25")
	if code != 0 {
		t.Fatalf("create exited %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "warning: organizer_overlap") {
		t.Fatalf("expected overlap warning, got %s", errOut)
	}
	if !strings.Contains(errOut, `calendarcore_service_operations_total{operation="create_meeting",status="success"} 1`) {
		t.Fatalf("expected operation counter, got %s", errOut)
	}
	if !strings.Contains(errOut, `calendarcore_notifications_published_total{kind="MeetingCreated"} 1`) {
		t.Fatalf("expected notification counter, got %s", errOut)
	}

	code, _, errOut = invoke("-trace", "list")
	if code != 0 || !strings.Contains(errOut, `"operation":"list_meetings"`) {
		t.Fatalf("expected list span on stderr, got %d %s", code, errOut)
	}
}

func TestCLIUsageErrors(t *testing.T) {
	withConfig(t)
	cases := [][]string{
		nil,
		{"frobnicate"},
		{"create", "-participants", "0xa"},
		{"cancel", "-id", "1"},
		{"available", "-date", "1"},
		{"archive"},
		{"create", "-bogus"},
	}
	for _, args := range cases {
		if code, _, _ := invoke(args...); code != 2 {
			t.Fatalf("%v: expected usage exit 2, got %d", args, code)
		}
	}
	code, _, errOut := invoke("create", "-organizer", "0xorg", "-start", "1", "-end", "2")
	if code != 1 || !strings.Contains(errOut, "invalid_participants") {
		t.Fatalf("expected invalid_participants, got %d %s", code, errOut)
	}
}

func TestCLIConfigFailure(t *testing.T) {
	prev := loadConfig
	loadConfig = func() (config.Config, error) {
		return config.LoadFrom(map[string]string{"CALENDARCORE_STORAGE_DRIVER": "etcd"})
	}
	t.Cleanup(func() { loadConfig = prev })
	if code, _, errOut := invoke("list"); code != 1 || !strings.Contains(errOut, "config") {
		t.Fatalf("expected config failure, got %d %s", code, errOut)
	}
}

func TestMainExitsWithCLICode(t *testing.T) {
	prevExit := exitFunc
	var got int
	exitFunc = func(code int) { got = code }
	t.Cleanup(func() { exitFunc = prevExit })
	withConfig(t)
	main()
	if got != 2 {
		t.Fatalf("expected usage exit without a command, got %d", got)
	}
}
