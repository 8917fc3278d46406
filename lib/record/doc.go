// Package record defines the record type, the mapping of record ids to store
// keys (Keyspace) and the conversion between records and the flat field maps
// stored as hashes.
//
// A record with id 42 in the default namespace is stored as
//
//	record:42 -> {name: "...", category: "...", measure: "..."}
//
// Decoding errors carry the store codes RetCMalformedRecord and RetCMalformedKey.
package record
