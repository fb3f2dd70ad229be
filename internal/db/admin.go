package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the SQL console and a backup download under the
// tsweb debug index (/debug/).
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Wake history",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "wakewatch-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup directory: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Failed to remove backup directory: %v", err)
		}
	}()

	name := fmt.Sprintf("wakewatch-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		log.Printf("Failed to stream backup: %v", err)
	}
}
