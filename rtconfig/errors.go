package rtconfig

import "errors"

var (
	ErrInvalidAppName         = errors.New("rtconfig: app.name must not be empty")
	ErrInvalidDirectoryShards = errors.New("rtconfig: directory.shards must be positive")
	ErrInvalidMailboxCapacity = errors.New("rtconfig: mailbox.default_capacity must not be negative")
	ErrInvalidOverflowPolicy  = errors.New("rtconfig: mailbox.overflow_policy is not recognized")
	ErrConfigFileNotFound     = errors.New("rtconfig: no config file found in search paths")
)
