package main

import (
	"os"
	"path/filepath"
	"testing"

	"relaychat/server/store"
)

func cliDBSetup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relaychat.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	st.Close()
	return dbPath
}

func cliDBWithUser(t *testing.T, username string) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relaychat.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := st.CreateUser(username, "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	st.Close()
	return dbPath
}

func TestRunCLIVersionReturnsTrue(t *testing.T) {
	if !RunCLI([]string{"version"}, "not-used.db") {
		t.Error("RunCLI(version) should return true")
	}
}

func TestRunCLIUnknownSubcommandReturnsFalse(t *testing.T) {
	if RunCLI([]string{"nonexistent-cmd"}, "not-used.db") {
		t.Error("RunCLI(unknown) should return false")
	}
}

func TestRunCLIEmptyArgsReturnsFalse(t *testing.T) {
	if RunCLI([]string{}, "not-used.db") {
		t.Error("RunCLI([]) should return false")
	}
}

func TestRunCLINilArgsReturnsFalse(t *testing.T) {
	if RunCLI(nil, "not-used.db") {
		t.Error("RunCLI(nil) should return false")
	}
}

func TestCLIStatusReturnsTrue(t *testing.T) {
	dbPath := cliDBWithUser(t, "alice")
	if !RunCLI([]string{"status"}, dbPath) {
		t.Error("RunCLI(status) should return true")
	}
}

func TestCLISettingsSetThenGet(t *testing.T) {
	dbPath := cliDBSetup(t)

	if !RunCLI([]string{"settings", "set", "motd", "hello"}, dbPath) {
		t.Error("RunCLI(settings set) should return true")
	}
	if !RunCLI([]string{"settings", "get", "motd"}, dbPath) {
		t.Error("RunCLI(settings get) should return true")
	}

	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	val, ok, err := st.GetSetting("motd")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if !ok || val != "hello" {
		t.Fatalf("got val=%q ok=%v, want hello/true", val, ok)
	}
}

func TestCLISettingsGetUnsetKey(t *testing.T) {
	dbPath := cliDBSetup(t)
	if !RunCLI([]string{"settings", "get", "nope"}, dbPath) {
		t.Error("RunCLI(settings get <unset>) should still return true")
	}
}

func TestCLISettingsMissingArgsReturnsFalse(t *testing.T) {
	dbPath := cliDBSetup(t)
	if RunCLI([]string{"settings"}, dbPath) {
		t.Error("RunCLI(settings) with no args should return false")
	}
	if RunCLI([]string{"settings", "get"}, dbPath) {
		t.Error("RunCLI(settings get) with no key should return false")
	}
}

func TestCLIBackupDefaultPath(t *testing.T) {
	dbPath := cliDBSetup(t)

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	tmpDir := t.TempDir()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(origDir)

	if !RunCLI([]string{"backup"}, dbPath) {
		t.Error("RunCLI(backup) should return true")
	}

	backupPath := filepath.Join(tmpDir, "relaychat-backup.db")
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		t.Error("backup file should exist at default path")
	}

	backupStore, err := store.New(backupPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	backupStore.Close()
}

func TestCLIBackupCustomPath(t *testing.T) {
	dbPath := cliDBWithUser(t, "bob")
	outPath := filepath.Join(t.TempDir(), "custom-backup.db")

	if !RunCLI([]string{"backup", outPath}, dbPath) {
		t.Error("RunCLI(backup <path>) should return true")
	}

	if _, err := os.Stat(outPath); os.IsNotExist(err) {
		t.Error("backup file should exist at custom path")
	}

	backupStore, err := store.New(outPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backupStore.Close()

	u, err := backupStore.GetUser("bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "bob" {
		t.Errorf("backup should contain user bob, got %q", u.Username)
	}
}
