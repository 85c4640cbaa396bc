package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// LogbookQuery asks whether a callsign has been worked on a band. Queries
// are correlated with replies by id.
type LogbookQuery struct {
	ID       string `json:"id"`
	Callsign string `json:"callsign"`
	Band     string `json:"band"`
}

// LogbookReply answers one LogbookQuery.
type LogbookReply struct {
	ID     string `json:"id"`
	Worked bool   `json:"worked"`
}

// Logbook persists completed contacts in SQLite and answers worked-before
// queries over the bus.
type Logbook struct {
	db *sql.DB
}

// NewLogbook opens (creating if needed) the logbook database at path.
// Use ":memory:" for an ephemeral logbook.
func NewLogbook(path string) (*Logbook, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open logbook database: %w", err)
	}
	// the engine is the only writer; a single connection avoids
	// SQLITE_BUSY on concurrent bus callbacks
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE IF NOT EXISTS qsos (
		id TEXT PRIMARY KEY,
		callsign TEXT NOT NULL,
		grid TEXT,
		frequency INTEGER NOT NULL,
		band TEXT NOT NULL,
		mode TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		report_sent INTEGER,
		report_received INTEGER,
		my_callsign TEXT NOT NULL,
		my_grid TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_qsos_callsign_band ON qsos(callsign, band);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create logbook schema: %w", err)
	}
	return &Logbook{db: db}, nil
}

// Close closes the underlying database.
func (l *Logbook) Close() error {
	return l.db.Close()
}

// Add persists one completed contact.
func (l *Logbook) Add(rec QSORecord) error {
	var sent, received any
	if rec.ReportSent != nil {
		sent = *rec.ReportSent
	}
	if rec.ReportReceived != nil {
		received = *rec.ReportReceived
	}
	_, err := l.db.Exec(
		`INSERT INTO qsos (id, callsign, grid, frequency, band, mode, start_time, end_time,
			report_sent, report_received, my_callsign, my_grid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Callsign, rec.Grid, rec.Frequency, BandForFrequency(rec.Frequency),
		rec.Mode, rec.StartTime.UnixMilli(), rec.EndTime.UnixMilli(),
		sent, received, rec.MyCallsign, rec.MyGrid,
	)
	if err != nil {
		return fmt.Errorf("failed to insert QSO record: %w", err)
	}
	return nil
}

// HasWorked reports whether the callsign appears in the log for the given
// band. An empty band matches any band.
func (l *Logbook) HasWorked(callsign, band string) (bool, error) {
	var count int
	var err error
	if band == "" {
		err = l.db.QueryRow(`SELECT COUNT(*) FROM qsos WHERE callsign = ?`, callsign).Scan(&count)
	} else {
		err = l.db.QueryRow(`SELECT COUNT(*) FROM qsos WHERE callsign = ? AND band = ?`, callsign, band).Scan(&count)
	}
	if err != nil {
		return false, fmt.Errorf("worked-before query failed: %w", err)
	}
	return count > 0, nil
}

// Recent returns the most recently completed contacts, newest first.
func (l *Logbook) Recent(limit int) ([]QSORecord, error) {
	rows, err := l.db.Query(
		`SELECT id, callsign, grid, frequency, mode, start_time, end_time,
			report_sent, report_received, my_callsign, my_grid
		 FROM qsos ORDER BY end_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent QSO query failed: %w", err)
	}
	defer rows.Close()

	var records []QSORecord
	for rows.Next() {
		var rec QSORecord
		var grid, myGrid sql.NullString
		var startMs, endMs int64
		var sent, received sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.Callsign, &grid, &rec.Frequency, &rec.Mode,
			&startMs, &endMs, &sent, &received, &rec.MyCallsign, &myGrid); err != nil {
			return nil, fmt.Errorf("failed to scan QSO row: %w", err)
		}
		rec.Grid = grid.String
		rec.MyGrid = myGrid.String
		rec.StartTime = time.UnixMilli(startMs).UTC()
		rec.EndTime = time.UnixMilli(endMs).UTC()
		if sent.Valid {
			v := int(sent.Int64)
			rec.ReportSent = &v
		}
		if received.Valid {
			v := int(received.Int64)
			rec.ReportReceived = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Bind attaches the logbook to the bus: it persists completed contacts and
// answers worked-before queries synchronously.
func (l *Logbook) Bind(bus *EventBus) {
	bus.Subscribe(EventQSORecordAdded, func(ev Event) {
		if ev.Record == nil {
			return
		}
		if err := l.Add(*ev.Record); err != nil {
			log.Printf("Logbook: failed to persist QSO with %s: %v", ev.Record.Callsign, err)
		}
	})
	bus.Subscribe(EventLogbookQuery, func(ev Event) {
		if ev.Query == nil {
			return
		}
		worked, err := l.HasWorked(ev.Query.Callsign, ev.Query.Band)
		if err != nil {
			log.Printf("Logbook: query %s failed: %v", ev.Query.ID, err)
			worked = false
		}
		bus.Publish(Event{Type: EventLogbookReply, Reply: &LogbookReply{ID: ev.Query.ID, Worked: worked}})
	})
}

// bandEdge maps amateur band edges to their conventional labels.
type bandEdge struct {
	label string
	low   uint64
	high  uint64
}

var bandEdges = []bandEdge{
	{"2200m", 135_700, 137_800},
	{"630m", 472_000, 479_000},
	{"160m", 1_800_000, 2_000_000},
	{"80m", 3_500_000, 4_000_000},
	{"60m", 5_250_000, 5_450_000},
	{"40m", 7_000_000, 7_300_000},
	{"30m", 10_100_000, 10_150_000},
	{"20m", 14_000_000, 14_350_000},
	{"17m", 18_068_000, 18_168_000},
	{"15m", 21_000_000, 21_450_000},
	{"12m", 24_890_000, 24_990_000},
	{"10m", 28_000_000, 29_700_000},
	{"6m", 50_000_000, 54_000_000},
	{"2m", 144_000_000, 148_000_000},
	{"70cm", 420_000_000, 450_000_000},
}

// BandForFrequency returns the band label containing the frequency, or ""
// when it falls outside every amateur allocation.
func BandForFrequency(hz uint64) string {
	for _, b := range bandEdges {
		if hz >= b.low && hz <= b.high {
			return b.label
		}
	}
	return ""
}
