package service

import "os"

// File permission constants
const (
	// FilePermissions is the permission of files written into the target directory
	FilePermissions os.FileMode = 0644
	// DirPermissions is the permission of created directories
	DirPermissions os.FileMode = 0755
	// InstallerName is written to <dist-info>/INSTALLER
	InstallerName = "piplite"
)
