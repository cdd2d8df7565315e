package log

import "gopkg.in/natefinch/lumberjack.v2"

// FileSink returns an io.Writer that rotates at the given size, used by
// cmd/bnd to back a file-backed Logger for the --log-file flag. A
// maxSizeMB of 0 leaves lumberjack's default size limit (100 MB) in
// place; rotation cannot be turned off through this function.
func FileSink(path string, maxSizeMB, maxBackups, maxAgeDays int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}
