// revisionctl - control client for the revisiond daemon
//
//	revisionctl add <path> <revision-dir>   Watch a file or directory
//	revisionctl remove <path>               Stop watching a path
//	revisionctl list                        List watched targets
//	revisionctl import <file>               Import targets from JSON or YAML
//	revisionctl export [file]               Export targets as JSON or YAML
//	revisionctl history <path>              Show recorded revisions for a path
//	revisionctl status                      Show daemon status
//	revisionctl ping                        Check daemon liveness
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"revisiond/internal/config"
	"revisiond/internal/ipc"
	"revisiond/internal/store"
)

var version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		cmdAdd()
	case "remove", "rm":
		cmdRemove()
	case "list", "ls":
		cmdList()
	case "import":
		cmdImport()
	case "export":
		cmdExport()
	case "history":
		cmdHistory()
	case "status":
		cmdStatus()
	case "ping":
		cmdPing()
	case "version", "-v", "--version":
		fmt.Printf("revisionctl %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`revisionctl - Control Client for revisiond

USAGE:
    revisionctl <command> [options]

COMMANDS:
    add <path> <revision-dir>   Watch a file or directory
    remove <path>               Stop watching a path
    list                        List watched targets
    import <file>               Import targets from a JSON or YAML file
    export [file]               Export targets (stdout JSON by default)
    history <path> [-n limit]   Show recorded revisions for a path
    status                      Show daemon status
    ping                        Check daemon liveness
    help                        Show this help message

EXAMPLES:
    revisionctl add ~/thesis/draft.md ~/thesis/.revisions
    revisionctl add ~/projects/notes ~/backups/notes-revisions
    revisionctl export targets.yaml
    revisionctl history ~/thesis/draft.md -n 10

The daemon must be running; see 'revisiond run'.`)
}

// connect dials the daemon, exiting with a friendly message when it is
// not running.
func connect() *ipc.Client {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	client := ipc.NewClient(ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	if err := client.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, "Cannot connect to revisiond. Is the daemon running?")
		fmt.Fprintf(os.Stderr, "  socket: %s\n", cfg.IPC.SocketPath)
		os.Exit(1)
	}
	return client
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func cmdAdd() {
	if len(os.Args) < 4 {
		fatalf("Usage: revisionctl add <path> <revision-dir>")
	}

	path, err := filepath.Abs(os.Args[2])
	if err != nil {
		fatalf("Error resolving path: %v", err)
	}
	revisionDir, err := filepath.Abs(os.Args[3])
	if err != nil {
		fatalf("Error resolving revision directory: %v", err)
	}

	client := connect()
	defer client.Close()

	if err := client.AddTarget(path, revisionDir); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("Watching %s\n", path)
	fmt.Printf("  revisions: %s\n", revisionDir)
}

func cmdRemove() {
	if len(os.Args) < 3 {
		fatalf("Usage: revisionctl remove <path>")
	}

	path, err := filepath.Abs(os.Args[2])
	if err != nil {
		fatalf("Error resolving path: %v", err)
	}

	client := connect()
	defer client.Close()

	if err := client.RemoveTarget(path); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("Stopped watching %s\n", path)
}

func cmdList() {
	client := connect()
	defer client.Close()

	targets, err := client.ListTargets()
	if err != nil {
		fatalf("Error: %v", err)
	}

	if len(targets) == 0 {
		fmt.Println("No watched targets.")
		return
	}

	for _, t := range targets {
		fmt.Println(t.Path)
		fmt.Printf("  revisions: %s\n", t.RevisionDir)
		if t.LastFingerprint != "" {
			fmt.Printf("  last:      %s\n", t.LastFingerprint[:16])
		}
	}
}

func cmdImport() {
	if len(os.Args) < 3 {
		fatalf("Usage: revisionctl import <file.json|file.yaml>")
	}

	path := os.Args[2]
	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("Error reading file: %v", err)
	}

	records, err := store.ParseRecords(data, store.DetectRecordFormat(path))
	if err != nil {
		fatalf("Error parsing records: %v", err)
	}

	client := connect()
	defer client.Close()

	resp, err := client.ImportTargets(&ipc.ImportTargetsRequest{Records: records})
	if err != nil {
		fatalf("Error: %v", err)
	}

	fmt.Printf("Imported %d target(s)", resp.Applied)
	if resp.Skipped > 0 {
		fmt.Printf(", skipped %d invalid record(s)", resp.Skipped)
	}
	fmt.Println()
	if resp.Error != "" {
		fatalf("Warning: %s", resp.Error)
	}
}

func cmdExport() {
	client := connect()
	defer client.Close()

	resp, err := client.ExportTargets()
	if err != nil {
		fatalf("Error: %v", err)
	}

	outPath := ""
	if len(os.Args) > 2 {
		outPath = os.Args[2]
	}

	data, err := store.EncodeRecords(resp.Records, store.DetectRecordFormat(outPath))
	if err != nil {
		fatalf("Error encoding records: %v", err)
	}

	if outPath == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(outPath, data, 0600); err != nil {
		fatalf("Error writing file: %v", err)
	}
	fmt.Printf("Exported %d target(s) to %s\n", len(resp.Records), outPath)
}

func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 0, "Maximum number of revisions to show (0 = all)")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fatalf("Usage: revisionctl history <path> [-n limit]")
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fatalf("Error resolving path: %v", err)
	}

	client := connect()
	defer client.Close()

	resp, err := client.GetHistory(path, *limit)
	if err != nil {
		fatalf("Error: %v", err)
	}

	if len(resp.Revisions) == 0 {
		fmt.Printf("No recorded revisions for %s\n", path)
		return
	}

	fmt.Printf("Revisions of %s (newest first):\n", path)
	for _, r := range resp.Revisions {
		fmt.Printf("  %s  %8d bytes  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Size, r.StoredName)
	}
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		fatalf("Error: %v", err)
	}

	fmt.Println("revisiond: running")
	fmt.Printf("  Version:   %s\n", status.Version)
	fmt.Printf("  Uptime:    %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("  Targets:   %d\n", status.Targets)
	fmt.Printf("  Watches:   %d\n", status.Watches)
	fmt.Printf("  Pending:   %d\n", status.Pending)
	fmt.Printf("  Revisions: %d\n", status.Revisions)
	if len(status.LastErrors) > 0 {
		fmt.Println("  Recent errors:")
		for path, msg := range status.LastErrors {
			fmt.Printf("    %s: %s\n", path, msg)
		}
	}
}

func cmdPing() {
	client := connect()
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
}
