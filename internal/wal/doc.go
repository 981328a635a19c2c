// Package wal implements the append-only binary journal that makes the
// engine crash-recoverable.
//
// The journal is sharded across N files (wal-0.bin .. wal-{N-1}.bin); the
// shard for job id is id mod N, so every record for a given id lands in the
// same file and per-id ordering follows file order. Records have a fixed
// big-endian layout:
//
//	offset size field
//	0      8    id
//	8      4    delay (seconds)
//	12     4    ttr (seconds)
//	16     4    priority
//	20     8    created_at (ms)
//	28     8    deadline_at (ms; 0 if absent)
//	36     2    state (0=ready 1=delayed 2=reserved 3=buried 4=invalid)
//	38     4    reserves
//	42     4    timeouts
//	46     4    releases
//	50     4    buries
//	54     4    kicks
//	58     4    tube length (0 on delta records)
//	62     L1   tube (UTF-8)
//	62+L1  4    body length (0 on delta records)
//	66+L1  L2   body
//
// The first record for an id (its put) is full — it carries tube and body.
// Later records are deltas: every field overwrites the prior value except
// tube and body, which only full records set; a delta with state invalid
// removes the id. Replay reduces reserved to ready (no reservation survives
// a restart), then truncates the shards and rewrites a full record per live
// job so the fresh files are self-sufficient. An unreadable tail is treated
// as end-of-file: a crash loses at most the record being appended.
package wal
