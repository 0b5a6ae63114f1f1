// Package scopedb records FleaDAQ session and capture metadata in a
// ClickHouse database. The database is optional: when no server is
// reachable every Record call is a cheap no-op, so callers never need to
// distinguish the two cases.
package scopedb

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "fleadaq" // official SQL name of the database

// Connection wraps one ClickHouse connection and the goroutine that feeds
// it. Messages are handed over through channels so capture-path callers
// never wait on the database.
type Connection struct {
	conn       clickhouse.Conn
	err        error
	session    *SessionMessage
	capturemsg chan *CaptureMessage
	sync.WaitGroup
}

// IsConnected says whether the database is usable.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer checks that a ClickHouse server is reachable with the
// configured credentials.
func PingServer() error {
	db := createConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	return db.conn.Close()
}

// Start opens the database connection, records the session row, and
// launches the goroutine that drains capture messages until abort closes.
func Start(session *SessionMessage, abort <-chan struct{}) *Connection {
	db := createConnection()
	db.session = session
	db.logSession()
	go db.handleConnection(abort)
	return db
}

// Dummy returns a Connection that discards everything, for runs without a
// database.
func Dummy() *Connection {
	db := &Connection{}
	db.Add(1)
	return db
}

func createConnection() *Connection {
	db := &Connection{}
	addr := os.Getenv("FLEADAQ_DB_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}
	opt := clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: databaseName,
			Username: os.Getenv("FLEADAQ_DB_USER"),
			Password: os.Getenv("FLEADAQ_DB_PASSWORD"),
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "fleadaq", Version: runtime.Version()},
			},
		},
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn
	db.Add(1)

	if err = conn.Ping(context.Background()); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}
	db.capturemsg = make(chan *CaptureMessage)
	return db
}

func (db *Connection) logSession() {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	s := db.session
	formattedStart := s.Start.Format("2006-01-02 15:04:05.000000")
	formattedEnd := s.End.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?)`, nowait,
		s.ID, s.Hostname, s.Version, s.GoVersion, s.Device,
		formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into sessions ", err)
		db.err = err
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case cmsg := <-db.capturemsg:
			db.handleCaptureMessage(cmsg)
		}
	}
}

// Disconnect finalizes the session row with its end time.
func (db *Connection) Disconnect() {
	if db.IsConnected() {
		db.session.End = time.Now()
		db.logSession()
	}
}

// RecordCapture queues one capture row. Never blocks the capture path;
// implements the root package's CaptureArchive interface.
func (db *Connection) RecordCapture(id, probe string, nsamples int, throughput float64) {
	if !db.IsConnected() {
		return
	}
	msg := &CaptureMessage{
		ID:         id,
		SessionID:  db.session.ID,
		Probe:      probe,
		NSamples:   nsamples,
		Throughput: throughput,
		Time:       time.Now(),
	}
	go func() { db.capturemsg <- msg }()
}

func (db *Connection) handleCaptureMessage(m *CaptureMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedTime := m.Time.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO captures VALUES (?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.SessionID, m.Probe, m.NSamples, m.Throughput, formattedTime,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into captures ", err)
		db.err = err
	}
}
