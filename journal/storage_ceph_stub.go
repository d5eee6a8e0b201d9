//go:build !ceph

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

import "io"

// CephConfig names the RADOS cluster/pool a CephStorage writes journal
// segments into. This build has ceph support compiled out; every field
// is retained so callers building with and without the ceph tag share
// the same config literal.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephStorage stub. Build with -tags=ceph to get the real RADOS-backed
// implementation.
type CephStorage struct {
	cfg CephConfig
}

func NewCephStorage(cfg CephConfig) *CephStorage {
	return &CephStorage{cfg: cfg}
}

const cephNotCompiledMsg = "journal: ceph support not compiled in. Build with: go build -tags=ceph"

func (s *CephStorage) OpenAppend(segment string) (io.WriteCloser, error) {
	panic(cephNotCompiledMsg)
}

func (s *CephStorage) OpenRead(segment string) (io.ReadCloser, error) {
	panic(cephNotCompiledMsg)
}

func (s *CephStorage) List() ([]string, error) {
	panic(cephNotCompiledMsg)
}

func (s *CephStorage) Remove(segment string) error {
	panic(cephNotCompiledMsg)
}

var _ Storage = (*CephStorage)(nil)
