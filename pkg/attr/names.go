package attr

// Namespaces.
const (
	NamespaceStandard   = "standard"
	NamespaceEtag       = "etag"
	NamespaceUnix       = "unix"
	NamespaceTime       = "time"
	NamespaceAccess     = "access"
	NamespaceSELinux    = "selinux"
	NamespaceXattr      = "xattr"
	NamespaceXattrSys   = "xattr_sys"
	NamespaceFilesystem = "filesystem"
	NamespaceMail       = "mail"
)

// standard namespace. The first eight are stored unboxed in FileInfo.
const (
	StandardName          = "standard:name"
	StandardDisplayName   = "standard:display-name"
	StandardType          = "standard:type"
	StandardSize          = "standard:size"
	StandardIsSymlink     = "standard:is-symlink"
	StandardSymlinkTarget = "standard:symlink-target"
	StandardIsHidden      = "standard:is-hidden"
	StandardIsBackup      = "standard:is-backup"
	StandardEditName      = "standard:edit-name"
	StandardContentType   = "standard:content-type"
	StandardIcon          = "standard:icon"
)

const EtagValue = "etag:value"

const (
	UnixDevice    = "unix:device"
	UnixInode     = "unix:inode"
	UnixMode      = "unix:mode"
	UnixNlink     = "unix:nlink"
	UnixUID       = "unix:uid"
	UnixGID       = "unix:gid"
	UnixRdev      = "unix:rdev"
	UnixBlockSize = "unix:block-size"
	UnixBlocks    = "unix:blocks"
)

const (
	TimeModified     = "time:modified"
	TimeModifiedUsec = "time:modified-usec"
	TimeAccess       = "time:access"
	TimeAccessUsec   = "time:access-usec"
	TimeChanged      = "time:changed"
	TimeChangedUsec  = "time:changed-usec"
)

const (
	AccessCanRead    = "access:can-read"
	AccessCanWrite   = "access:can-write"
	AccessCanExecute = "access:can-execute"
	AccessCanRename  = "access:can-rename"
	AccessCanDelete  = "access:can-delete"
)

const SELinuxContext = "selinux:context"

const (
	FilesystemSize     = "filesystem:size"
	FilesystemFree     = "filesystem:free"
	FilesystemType     = "filesystem:type"
	FilesystemReadonly = "filesystem:readonly"
)

const MailSender = "mail:sender"

// FileType is the value of standard:type.
type FileType uint32

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymbolicLink
	FileTypeSpecial
	FileTypeShortcut
	FileTypeMountable
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "regular"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymbolicLink:
		return "symlink"
	case FileTypeSpecial:
		return "special"
	case FileTypeShortcut:
		return "shortcut"
	case FileTypeMountable:
		return "mountable"
	default:
		return "unknown"
	}
}
