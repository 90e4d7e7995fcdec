package clickhouse

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "tradelab",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn %q: %v", dsn, err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch:9000" || u.Path != "/tradelab" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %q", dsn)
	}
	q := u.Query()
	if q.Get("max_execution_time") != "60" || q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Get("dial_timeout") != "5s" {
		t.Fatalf("unexpected dial_timeout %q", q.Get("dial_timeout"))
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "db", UseHTTP: true})
	if !strings.HasPrefix(dsn, "http://") || strings.Contains(dsn, "async_insert") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestSchemaTargetsDatabase(t *testing.T) {
	stmts := Schema("lab")
	if len(stmts) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(stmts))
	}
	for _, table := range []string{TableBars, TableSigs, TableRuns, TableTrades} {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, "lab."+table) {
				found = true
			}
		}
		if !found {
			t.Fatalf("no DDL for %s", table)
		}
	}
}
