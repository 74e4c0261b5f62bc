package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"confhub/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("confhub %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "bans":
		return cliBans(args[1:], dbPath)
	case "settings":
		return cliSettings(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
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

	n, _ := st.AuditLogCount()
	bans, _ := st.GetBans()
	size := "unknown"
	if info, err := os.Stat(dbPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Printf("Database: %s (%s)\n", dbPath, size)
	fmt.Printf("Audit log entries: %d\n", n)
	fmt.Printf("Active bans: %d\n", len(bans))
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliBans(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if len(args) == 0 || args[0] == "list" {
		bans, err := st.GetBans()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(bans) == 0 {
			fmt.Println("No bans recorded.")
			return true
		}
		for _, b := range bans {
			fmt.Printf("  [%d] %s — %s\n", b.ID, b.Name, b.Reason)
		}
		return true
	}

	if args[0] == "add" && len(args) > 1 {
		name, reason := args[1], ""
		if len(args) > 2 {
			reason = args[2]
		}
		id, err := st.InsertBan(name, reason)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error adding ban: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Banned %q (id=%d)\n", name, id)
		return true
	}

	if args[0] == "remove" && len(args) > 1 {
		var id int64
		if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil {
			fmt.Fprintf(os.Stderr, "invalid ban id: %s\n", args[1])
			os.Exit(1)
		}
		if err := st.DeleteBan(id); err != nil {
			fmt.Fprintf(os.Stderr, "error removing ban: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed ban %d\n", id)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: confhub bans [list|add <name> [reason]|remove <id>]\n")
	os.Exit(1)
	return true
}

func cliSettings(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if len(args) == 0 || args[0] == "list" {
		settings, err := st.GetAllSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(settings, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if args[0] == "set" && len(args) > 2 {
		key, value := args[1], args[2]
		if err := st.SetSetting(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: confhub settings [list|set <key> <value>]\n")
	os.Exit(1)
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	outPath := "confhub-backup.db"
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
