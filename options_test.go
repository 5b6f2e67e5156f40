package raftlog

import "testing"

func TestOptionsValidateRejectsRecordsPerPartitionBelowTwo(t *testing.T) {
	o := DefaultOptions()
	o.RecordsPerPartition = 1
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for RecordsPerPartition=1")
	}

	o.RecordsPerPartition = 0
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for RecordsPerPartition=0")
	}

	o.RecordsPerPartition = 2
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error for RecordsPerPartition=2: %v", err)
	}
}

func TestOptionsValidateRejectsNonPositiveSizes(t *testing.T) {
	base := DefaultOptions()

	o := base
	o.BufferSize = 0
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for BufferSize=0")
	}

	o = base
	o.SnapshotBufferSize = 0
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for SnapshotBufferSize=0")
	}

	o = base
	o.MaxConcurrentReads = 0
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for MaxConcurrentReads=0")
	}
}
