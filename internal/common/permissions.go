package common

// File permission constants for consistent security across the application
const (
	// FilePermissionSecure is used for sensitive files (config, encrypted passwords)
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for non-sensitive files (metrics textfiles, rendered SQL)
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for directories containing sensitive files
	DirPermissionSecure = 0700
)
