package main

import (
	"fmt"
	"os"

	"relaychat/server/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	subcmd := args[0]
	switch subcmd {
	case "version":
		fmt.Printf("relaychat server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	case "settings":
		return cliSettings(args[1:], dbPath)
	default:
		return false
	}
}

func cliStatus(dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	users, err := st.UserCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	messages, err := st.MessageCount()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", users)
	fmt.Printf("Messages: %d\n", messages)
	fmt.Printf("Version: %s\n", Version)
	return true
}

// cliSettings reads or writes a single key in the store's settings table:
// "settings get <key>" or "settings set <key> <value>".
func cliSettings(args []string, dbPath string) bool {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: settings get <key> | settings set <key> <value>")
		return false
	}

	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch args[0] {
	case "get":
		val, ok, err := st.GetSetting(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("%s: (unset)\n", args[1])
			return true
		}
		fmt.Printf("%s: %s\n", args[1], val)
		return true
	case "set":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: settings set <key> <value>")
			return false
		}
		if err := st.SetSetting(args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s = %s\n", args[1], args[2])
		return true
	default:
		fmt.Fprintln(os.Stderr, "usage: settings get <key> | settings set <key> <value>")
		return false
	}
}

func cliBackup(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	outPath := "relaychat-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
