// Package cache stores rendered frames in a sqlite database so that an unchanged image does not have to be decoded
// and dithered again.
package cache

import (
	"crypto/sha1"
	"database/sql"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// A FrameDB is a sqlite-backed frame cache. Frames are stored zstd-compressed.
type FrameDB struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (creating if necessary) the cache database in file.
func Open(file string) (*FrameDB, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS frame (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL UNIQUE, size INTEGER NOT NULL, data BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}

	return &FrameDB{db: db, enc: enc, dec: dec}, nil
}

// Key derives a cache key from the downloaded bytes and a description of how they are rendered.
func Key(data []byte, variant string) string {
	h := sha1.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(variant))
	return fmt.Sprintf("%X", h.Sum(nil))
}

// Get copies the frame stored under key into dst. It reports false if there is no such frame. A stored frame whose
// size differs from len(dst) is treated as an error.
func (c *FrameDB) Get(key string, dst []byte) (bool, error) {
	var size int
	var blob []byte
	switch err := c.db.QueryRow("SELECT size, data FROM frame WHERE sha1 = ?", key).Scan(&size, &blob); err {
	case sql.ErrNoRows:
		return false, nil
	case nil:
		// OK
	default:
		return false, err
	}

	if size != len(dst) {
		return false, fmt.Errorf("cache: frame %v holds %d bytes, want %d", key, size, len(dst))
	}
	plain, err := c.dec.DecodeAll(blob, make([]byte, 0, size))
	if err != nil {
		return false, fmt.Errorf("cache: decompress frame %v: %w", key, err)
	}
	if len(plain) != size {
		return false, fmt.Errorf("cache: frame %v is corrupt", key)
	}
	copy(dst, plain)
	return true, nil
}

// Put stores frame under key, replacing any previous frame with the same key.
func (c *FrameDB) Put(key string, frame []byte) error {
	blob := c.enc.EncodeAll(frame, nil)
	_, err := c.db.Exec("INSERT OR REPLACE INTO frame (sha1, size, data) VALUES (?, ?, ?)", key, len(frame), blob)
	return err
}

// Len returns the number of cached frames.
func (c *FrameDB) Len() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM frame").Scan(&n)
	return n, err
}

// Close closes the database.
func (c *FrameDB) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
