package reslock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ownerString returns this process's identity as the lock entry content.
func ownerString() string {
	return fmt.Sprintf("%s:%d", hostname(), os.Getpid())
}

// parseOwner splits a "host:pid" entry content. The host half may contain
// no colon of its own (hostnames don't), so splitting on the last colon is
// sufficient and symmetric with ownerString's Sprintf.
func parseOwner(content string) (host string, pid int, ok bool) {
	idx := strings.LastIndex(content, ":")
	if idx < 0 {
		return "", 0, false
	}
	host = content[:idx]
	pidStr := content[idx+1:]
	p, err := strconv.Atoi(pidStr)
	if err != nil || host == "" {
		return "", 0, false
	}
	return host, p, true
}

// createEntry attempts an atomic create of path with the given content,
// preferring a symlink (atomic even over network filesystems per spec
// §4.1) and falling back to a plain file with O_EXCL on platforms without
// symlink support. created is false (with nil error) on a pre-existing
// entry — the normal collision path, not a failure.
func createEntry(path, content string) (created bool, err error) {
	if err := os.Symlink(content, path); err == nil {
		return true, nil
	} else if errors.Is(err, os.ErrExist) {
		return false, nil
	} else if !symlinkUnsupported(err) {
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	_, werr := f.WriteString(content)
	cerr := f.Close()
	if werr != nil {
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, werr)
	}
	if cerr != nil {
		return false, fmt.Errorf("%w: %w", ErrLockUnavailable, cerr)
	}
	return true, nil
}

func symlinkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, os.ErrPermission)
}

// readEntry returns the content of an existing lock entry, symlink or
// plain file.
func readEntry(path string) (string, error) {
	target, err := os.Readlink(path)
	if err == nil {
		return target, nil
	}
	if os.IsNotExist(err) {
		return "", err
	}
	// Readlink fails with a LinkError wrapping EINVAL when path exists but
	// isn't a symlink — the plain-file fallback entry. Anything else is a
	// genuine filesystem error.
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return "", rerr
	}
	return string(data), nil
}

// unlinkEntry removes path, treating "not found" as success.
func unlinkEntry(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	return nil
}
