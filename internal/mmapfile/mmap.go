// Package mmapfile wraps read-only memory mapping of terminal files.
//
// Grammar directories routinely hold hundreds of terminal files that stay
// mapped for the process lifetime, so mappings are opened once and only
// torn down when the owning grammar is closed.
package mmapfile

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// File is a read-only memory mapping of a whole file.
type File struct {
	Data []byte
	size int64
}

// Open maps the named file read-only. The file descriptor is closed before
// returning; the mapping keeps the pages alive.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, syscall.EMFILE) {
			return nil, fmt.Errorf("opening %s: %w (raise the open file limit of the OS)", path, err)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		return &File{Data: nil, size: 0}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &File{Data: data, size: size}, nil
}

// Close unmaps the file. The Data slice must not be used afterwards.
func (m *File) Close() error {
	if m.Data == nil {
		return nil
	}
	data := m.Data
	m.Data = nil
	return unix.Munmap(data)
}
