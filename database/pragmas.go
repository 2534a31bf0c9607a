package database

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"flowwatch/config"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// pragma is applied on every new connection through the DSN and once at
// startup, so existing database files pick it up too.
type pragma struct {
	name  string
	value string
}

var (
	journalModes = map[string]bool{"WAL": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "OFF": true}
	syncLevels   = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true, "0": true, "1": true, "2": true, "3": true}
)

// storePragmas lists the pragmas cfg asks for. Unknown journal modes and
// synchronous levels are dropped.
func storePragmas(cfg *config.Config) []pragma {
	if !cfg.SQLitePragmasEnabled {
		return nil
	}

	var out []pragma
	if cfg.SQLiteBusyTimeoutMS > 0 {
		out = append(out, pragma{"busy_timeout", strconv.Itoa(cfg.SQLiteBusyTimeoutMS)})
	}
	if mode := strings.ToUpper(strings.TrimSpace(cfg.SQLiteJournalMode)); journalModes[mode] {
		out = append(out, pragma{"journal_mode", mode})
	}
	if level := strings.ToUpper(strings.TrimSpace(cfg.SQLiteSynchronous)); syncLevels[level] {
		out = append(out, pragma{"synchronous", level})
	}
	return out
}

// storeDSN adds pragmas as _pragma parameters, keeping any query already on path.
func storeDSN(path string, pragmas []pragma) string {
	if len(pragmas) == 0 {
		return path
	}

	base, rawQuery, _ := strings.Cut(path, "?")
	query, _ := url.ParseQuery(rawQuery)
	for _, p := range pragmas {
		query.Add("_pragma", p.name+"("+p.value+")")
	}
	return base + "?" + query.Encode()
}

func applyPragmas(db *gorm.DB, pragmas []pragma, log hclog.Logger) {
	for _, p := range pragmas {
		if err := db.Exec("PRAGMA " + p.name + " = " + p.value).Error; err != nil {
			log.Warn("pragma not applied", "pragma", p.name, "value", p.value, "error", err)
		}
	}
}

type poolLimits struct {
	maxOpen  int
	maxIdle  int
	idleTime time.Duration
	lifetime time.Duration
}

// storePoolLimits clamps the configured pool: at least one open connection,
// idle connections within [0, maxOpen], no negative durations.
func storePoolLimits(cfg *config.Config) poolLimits {
	maxOpen := max(cfg.SQLiteMaxOpenConns, 1)
	return poolLimits{
		maxOpen:  maxOpen,
		maxIdle:  min(max(cfg.SQLiteMaxIdleConns, 0), maxOpen),
		idleTime: time.Duration(max(cfg.SQLiteConnMaxIdleSec, 0)) * time.Second,
		lifetime: time.Duration(max(cfg.SQLiteConnMaxLifeSec, 0)) * time.Second,
	}
}
