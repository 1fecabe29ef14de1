package filesystem

import "github.com/hanwen/go-fuse/v2/fuse"

// SysAttrType is the file type portion of a mode
type SysAttrType uint32

const (
	DirAttr     SysAttrType = fuse.S_IFDIR
	FileAttr    SysAttrType = fuse.S_IFREG
	SymlinkAttr SysAttrType = fuse.S_IFLNK
)

const (
	// TypeMask selects the file type bits of a mode
	TypeMask uint32 = 0o170000
	// PermMask selects the permission bits of a mode, including setuid,
	// setgid and sticky
	PermMask uint32 = 0o7777

	// DirSize is the fixed size reported for every directory
	DirSize = 4096
	// BlockSize is the preferred I/O size reported in stat results
	BlockSize = 4096

	// MaxFileSize bounds file content; writes or truncates past it fail
	// with FileTooLarge
	MaxFileSize int64 = 1 << 32

	// SuperUserID is the reserved identity that bypasses permission checks
	SuperUserID uint32 = 0
)
