package engine

import (
	"context"
	"testing"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

func TestStatementQueryValues(t *testing.T) {
	s, err := Factory(protocol.ConnectionInfo{Database: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.PrepareStatement("VALUES 7", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsQuery() {
		t.Fatal("VALUES should be classified as a query")
	}
	rows, err := st.Query(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := rows.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	if got := rows.Values()[0].Int; got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
	if ok, _ := rows.Next(); ok {
		t.Fatal("expected exactly one row")
	}
}

func TestStatementUpdateStateChange(t *testing.T) {
	s, err := Factory(protocol.ConnectionInfo{Database: "t2"})
	if err != nil {
		t.Fatal(err)
	}
	before := s.ModificationID()

	st, _ := s.PrepareStatement("SET X=1", 0)
	if st.IsQuery() {
		t.Fatal("SET should be classified as an update")
	}
	if _, err := st.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.ModificationID() == before {
		t.Fatal("a SET statement must bump the session's modificationId")
	}

	st2, _ := s.PrepareStatement("INSERT BAD VALUES(1)", 0)
	if _, err := st2.Update(context.Background()); err == nil {
		t.Fatal("expected the BAD statement to fail")
	}
}

func TestStorageMapReplication(t *testing.T) {
	s, err := Factory(protocol.ConnectionInfo{Database: "t3"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := s.GetStorageMap("mymap")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, found, err := m.Get([]byte("k"))
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("got %q, %v, %v", got, found, err)
	}
	repl, ok := m.Replication()
	if !ok {
		t.Fatal("expected storageMap to support Replication")
	}
	if err := repl.AddLeafPage([]byte("page1")); err != nil {
		t.Fatal(err)
	}
	if err := repl.RemoveLeafPage([]byte("page1")); err != nil {
		t.Fatal(err)
	}
}
