//go:build ceph

/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package journal

import (
	"bytes"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephConfig names the RADOS cluster/pool a CephStorage writes journal
// segments into, generalizing the teacher's CephFactory
// (storage/persistence-ceph.go).
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephStorage is a Storage backed by a RADOS object pool. Like S3, RADOS
// has no append primitive, so each segment is held in memory and
// written in full (via WriteFull, an atomic overwrite) on every Sync.
type CephStorage struct {
	cfg CephConfig

	mu     sync.Mutex
	opened bool
	conn   *rados.Conn
	ioctx  *rados.IOContext
}

// NewCephStorage constructs a CephStorage; the RADOS connection is
// opened lazily on first use.
func NewCephStorage(cfg CephConfig) *CephStorage {
	return &CephStorage{cfg: cfg}
}

func (s *CephStorage) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(s.cfg.ClusterName, s.cfg.UserName)
	if err != nil {
		return err
	}
	if s.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(s.cfg.ConfFile); err != nil {
			return err
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	ioctx, err := conn.OpenIOContext(s.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return err
	}
	s.conn = conn
	s.ioctx = ioctx
	s.opened = true
	return nil
}

func (s *CephStorage) obj(segment string) string {
	return path.Join(s.cfg.Prefix, segment)
}

// manifest is a newline-separated index of segment names, since plain
// librados cannot efficiently enumerate "all objects under a prefix"
// without one (the same limitation the teacher's Remove() notes).
func (s *CephStorage) manifestObj() string { return path.Join(s.cfg.Prefix, ".manifest") }

func (s *CephStorage) readManifest() ([]string, error) {
	obj := s.manifestObj()
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, nil // no manifest yet: empty journal
	}
	data := make([]byte, stat.Size)
	n, err := s.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimSpace(string(data[:n])), "\n"), nil
}

func (s *CephStorage) writeManifest(names []string) error {
	sort.Strings(names)
	return s.ioctx.WriteFull(s.manifestObj(), []byte(strings.Join(names, "\n")))
}

func (s *CephStorage) addToManifest(segment string) error {
	names, err := s.readManifest()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == segment {
			return nil
		}
	}
	return s.writeManifest(append(names, segment))
}

func (s *CephStorage) removeFromManifest(segment string) error {
	names, err := s.readManifest()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != segment {
			kept = append(kept, n)
		}
	}
	return s.writeManifest(kept)
}

type cephAppendWriter struct {
	storage *CephStorage
	segment string
	buf     bytes.Buffer
}

func (w *cephAppendWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *cephAppendWriter) Sync() error {
	if err := w.storage.ioctx.WriteFull(w.storage.obj(w.segment), w.buf.Bytes()); err != nil {
		return err
	}
	return w.storage.addToManifest(w.segment)
}

func (w *cephAppendWriter) Close() error { return w.Sync() }

func (s *CephStorage) OpenAppend(segment string) (io.WriteCloser, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return &cephAppendWriter{storage: s, segment: segment}, nil
}

func (s *CephStorage) OpenRead(segment string) (io.ReadCloser, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	obj := s.obj(segment)
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, err
	}
	data := make([]byte, stat.Size)
	n, err := s.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data[:n])), nil
}

func (s *CephStorage) List() ([]string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	names, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *CephStorage) Remove(segment string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.ioctx.Delete(s.obj(segment)); err != nil {
		return err
	}
	return s.removeFromManifest(segment)
}

var _ Storage = (*CephStorage)(nil)
