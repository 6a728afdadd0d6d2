package timescaledb

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewUnreachable(t *testing.T) {
	_, err := New(context.Background(), "host=127.0.0.1 port=1 user=peaktree dbname=peaktree sslmode=disable connect_timeout=1", uuid.New(), nil)
	if err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestHypertablesCoverBothTables(t *testing.T) {
	for _, table := range []string{"peaktree_gates", "peaktree_nodes"} {
		found := false
		for _, stmt := range []string{createGatesHypertableSQL, createNodesHypertableSQL} {
			if strings.Contains(stmt, "'"+table+"'") {
				found = true
			}
		}
		if !found {
			t.Errorf("no hypertable for %s", table)
		}
	}
}
