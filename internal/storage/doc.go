// Package storage defines the storage-agnostic contract shared by the
// signaling runtime and its modules.
//
// A Backend is implemented twice: storage/redisstore talks to a Redis
// compatible server and storage/memory keeps everything in process. The two
// are chosen at startup and never mixed. Everything above the Backend
// (attribute batches, room and runner locks, the room participant set, module
// keys) is written once against the interface.
//
// Key names are part of the wire contract with a shared broker and are built
// only through the helpers in keys.go.
package storage
