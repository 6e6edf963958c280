package protocol

import "testing"

func TestObjectCacheAddGetFree(t *testing.T) {
	c := NewObjectCache(8)
	c.AddObject(1, CachedObject{Kind: CachedStatement, Statement: "st"})

	obj, ok := c.GetObject(1, false)
	if !ok || obj.Kind != CachedStatement {
		t.Fatalf("GetObject(1) = %+v, %v", obj, ok)
	}
	if _, ok := c.GetObject(2, true); ok {
		t.Fatal("id 2 was never added")
	}

	freed, ok := c.FreeObject(1)
	if !ok || freed.Statement != "st" {
		t.Fatalf("FreeObject(1) = %+v, %v", freed, ok)
	}
	if _, ok := c.GetObject(1, true); ok {
		t.Fatal("freed id should be gone")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestObjectCacheChangeID(t *testing.T) {
	c := NewObjectCache(8)
	c.AddObject(5, CachedObject{Kind: CachedResult, Result: "rows"})
	if !c.ChangeID(5, 9) {
		t.Fatal("ChangeID(5, 9) should succeed")
	}
	if _, ok := c.GetObject(5, true); ok {
		t.Fatal("old id should be removed")
	}
	obj, ok := c.GetObject(9, false)
	if !ok || obj.Result != "rows" {
		t.Fatalf("GetObject(9) = %+v, %v", obj, ok)
	}
	if c.ChangeID(5, 9) {
		t.Fatal("renaming a missing id should fail")
	}
}

func TestObjectCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewObjectCache(2)
	c.AddObject(1, CachedObject{Kind: CachedStatement})
	c.AddObject(2, CachedObject{Kind: CachedStatement})
	c.AddObject(3, CachedObject{Kind: CachedStatement})
	if _, ok := c.GetObject(1, true); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.GetObject(3, false); !ok {
		t.Fatal("newest entry should survive")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}
