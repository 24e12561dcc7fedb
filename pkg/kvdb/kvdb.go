// Package kvdb implements the singly-linked key/value dictionary that the
// HTTP parser builds over a headers, query, or cookie Buffer. It is
// grounded on the ouistiti libhttpserver dbentry_t design (dbentry.h):
// each entry references the owning Buffer plus (offset, length) pairs for
// key and value, never raw string copies.
package kvdb

import "oakserve/oakhttpd/pkg/buffer"

// Slice is an (offset, length) reference into a Buffer.
type Slice struct {
	Offset int
	Length int
}

// Entry is one key/value pair referencing slices of a backing Buffer.
type Entry struct {
	Storage *buffer.Buffer
	Key     Slice
	Value   Slice
	Next    *Entry
}

// KeyString resolves the entry's key bytes to a string.
func (e *Entry) KeyString() string {
	return string(e.Storage.Slice(e.Key.Offset, e.Key.Length))
}

// ValueString resolves the entry's value bytes to a string.
func (e *Entry) ValueString() string {
	return string(e.Storage.Slice(e.Value.Offset, e.Value.Length))
}

// DB is the head of the entry list. A nil *DB is a valid empty dictionary.
type DB struct {
	head *Entry
	tail *Entry
}

// trueLiteral is substituted for an empty value, matching fillDB's rule
// that a key with no "=value" part is a boolean flag.
const trueLiteral = "true"

// MultiValueFunc reports whether dup keys are allowed to coexist instead of
// being rejected/overwritten, e.g. Set-Cookie. The caller supplies the
// allow-list since it is configurable (SPEC_FULL.md resolves the spec's
// open question about this list by making it part of server.Config).
type MultiValueFunc func(key string) bool

// Insert adds a key/value pair, de-duplicating unless allowed is true for
// this key (in which case the new entry is appended alongside existing
// ones with the same key). Returns false if an existing single-valued key
// collided and was left untouched (first write wins, matching fillDB's
// linear insert-at-tail-if-absent semantics).
func (db *DB) Insert(storage *buffer.Buffer, key Slice, value Slice, allowDup bool) bool {
	if !allowDup {
		for e := db.head; e != nil; e = e.Next {
			if sliceEqual(storage, e.Key, storage, key) {
				return false
			}
		}
	}
	entry := &Entry{Storage: storage, Key: key, Value: value}
	if db.tail == nil {
		db.head = entry
		db.tail = entry
	} else {
		db.tail.Next = entry
		db.tail = entry
	}
	return true
}

func sliceEqual(sa *buffer.Buffer, a Slice, sb *buffer.Buffer, b Slice) bool {
	if a.Length != b.Length {
		return false
	}
	ba := sa.Slice(a.Offset, a.Length)
	bb := sb.Slice(b.Offset, b.Length)
	if len(ba) != len(bb) {
		return false
	}
	for i := range ba {
		if lower(ba[i]) != lower(bb[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 32
	}
	return c
}

// Get returns the first entry matching key (case-insensitive), or nil.
func (db *DB) Get(storage *buffer.Buffer, key string) *Entry {
	for e := db.head; e != nil; e = e.Next {
		if equalString(storage, e.Key, key) {
			return e
		}
	}
	return nil
}

// GetAll returns every entry matching key, preserving insertion order —
// used for Set-Cookie and other multi-valued headers.
func (db *DB) GetAll(storage *buffer.Buffer, key string) []*Entry {
	var out []*Entry
	for e := db.head; e != nil; e = e.Next {
		if equalString(storage, e.Key, key) {
			out = append(out, e)
		}
	}
	return out
}

func equalString(storage *buffer.Buffer, s Slice, key string) bool {
	if s.Length != len(key) {
		return false
	}
	b := storage.Slice(s.Offset, s.Length)
	for i := range b {
		if lower(b[i]) != lower(key[i]) {
			return false
		}
	}
	return true
}

// Entries returns the list head for iteration by callers that need the
// full ordered set (e.g. the response header serializer).
func (db *DB) Entries() *Entry {
	if db == nil {
		return nil
	}
	return db.head
}

// FillDB walks storage from offset 0 to validEnd, treating sep1 (e.g. ':'
// or '=') as the key/value separator and sep2 (e.g. '\n' or '&') as the
// record separator, inserting one Entry per record. Matches
// _buffer_filldb/dbentry semantics: a CR immediately before sep2 is
// overwritten with NUL in place (cheap C-string interop in the original;
// kept here only as the byte-level contract serializeDB must invert), and
// an empty value becomes the literal "true".
func FillDB(storage *buffer.Buffer, sep1, sep2 byte, multiValue MultiValueFunc) *DB {
	db := &DB{}
	data := storage.Get(0)
	recStart := 0
	n := len(data)
	for i := 0; i <= n; i++ {
		atEnd := i == n
		if !atEnd && data[i] != sep2 {
			continue
		}
		recEnd := i
		if recEnd > recStart {
			// trim a trailing CR in place, matching the CR->NUL convention
			if recEnd > recStart && data[recEnd-1] == '\r' {
				storage.SetByte(recStart+(recEnd-1-recStart), 0)
				recEnd--
			}
			sepIdx := -1
			for j := recStart; j < recEnd; j++ {
				if data[j] == sep1 {
					sepIdx = j
					break
				}
			}
			var key, value Slice
			if sepIdx >= 0 {
				key = Slice{Offset: recStart, Length: sepIdx - recStart}
				valOff := sepIdx + 1
				for valOff < recEnd && data[valOff] == ' ' {
					valOff++
				}
				value = Slice{Offset: valOff, Length: recEnd - valOff}
			} else {
				key = Slice{Offset: recStart, Length: recEnd - recStart}
				value = Slice{Offset: -1, Length: 0} // sentinel: synthesize "true"
			}
			keyStr := string(storage.Slice(key.Offset, key.Length))
			allow := multiValue != nil && multiValue(keyStr)
			if value.Offset == -1 {
				db.insertLiteral(storage, key, trueLiteral, allow)
			} else {
				db.Insert(storage, key, value, allow)
			}
		}
		recStart = i + 1
	}
	return db
}

// insertLiteral appends a synthetic value string (e.g. "true") to storage
// and inserts an entry referencing it, used when FillDB meets a bare flag
// key with no separator.
func (db *DB) insertLiteral(storage *buffer.Buffer, key Slice, literal string, allowDup bool) {
	off, res := storage.Append([]byte(literal))
	if res != buffer.Success {
		return
	}
	db.Insert(storage, key, Slice{Offset: off, Length: len(literal)}, allowDup)
}

// SerializeDB is the inverse of FillDB: it rewrites the delimiter bytes
// recorded in storage back into sep1/sep2 form so the buffer can be sent
// directly to the wire. Because FillDB punches NULs in place rather than
// allocating, serialization walks the same entry list and writes sep1
// immediately after each key, and sep2 immediately after each value,
// leaving the bytes in between untouched — restoring the exact original
// byte stream outside of the header CRs (P3).
func SerializeDB(db *DB, storage *buffer.Buffer, sep1, sep2 byte) {
	for e := db.head; e != nil; e = e.Next {
		sepPos := e.Key.Offset + e.Key.Length
		if sepPos < storage.Len() {
			storage.SetByte(sepPos, sep1)
		}
		endPos := e.Value.Offset + e.Value.Length
		if endPos < storage.Len() {
			storage.SetByte(endPos, sep2)
		}
	}
}
