// Command dbinspect prints the sync state of a local LeafWise store:
// per-table record counts, sync metadata, and unresolved conflicts.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/leafwise/leafwise-sync/internal/store"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, "Leafwise", "leafwise.db")
	}

	st, err := store.Open(dbPath, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	fmt.Println("=== Store Inspection ===")
	fmt.Printf("Path: %s\n", dbPath)
	fmt.Println()

	stats, err := st.GetStatistics(ctx)
	if err != nil {
		log.Fatalf("Failed to read statistics: %v", err)
	}

	fmt.Println("=== Tables ===")
	for _, s := range stats {
		fmt.Printf("%s:\n", s.Table)
		fmt.Printf("  Total: %d\n", s.Total)
		fmt.Printf("  Clean: %d\n", s.Clean)
		fmt.Printf("  Dirty: %d (create %d, update %d, delete %d)\n",
			s.Dirty(), s.DirtyCreate, s.DirtyUpdate, s.DirtyDelete)
		fmt.Printf("  Soft-deleted: %d\n", s.SoftDeleted)

		meta, err := st.GetSyncMetadata(ctx, s.Table)
		if err != nil {
			log.Printf("Error reading sync metadata for %s: %v", s.Table, err)
			continue
		}
		fmt.Printf("  Status: %s", meta.Status)
		if meta.ErrorMessage != "" {
			fmt.Printf(" (%s)", meta.ErrorMessage)
		}
		fmt.Println()
		fmt.Printf("  Last sync: %s\n", formatTimestamp(meta.LastSyncAt))
		fmt.Printf("  Last push: %s\n", formatTimestamp(meta.LastPushAt))
		fmt.Printf("  Pull watermark: %s\n", formatTimestamp(meta.LastPullAt))
		fmt.Println()
	}

	conflicts, err := st.ListUnresolvedConflicts(ctx)
	if err != nil {
		log.Fatalf("Failed to list conflicts: %v", err)
	}

	fmt.Println("=== Unresolved Conflicts ===")
	if len(conflicts) == 0 {
		fmt.Println("none")
		return
	}
	for _, c := range conflicts {
		fmt.Printf("[%d] %s/%s (%s, detected %s)\n",
			c.ID, c.Table, c.RecordID, c.Kind, c.DetectedAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Printf("Total unresolved: %d\n", len(conflicts))
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
