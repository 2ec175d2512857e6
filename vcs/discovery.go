package vcs

import "context"

// Discovery resolves the commit set for histedit's --outgoing mode, which
// targets everything not yet known to a peer rather than an explicit range
// (spec §6).
type Discovery interface {
	// FindCommonOutgoing returns commits present locally but missing on the
	// named peer (a path or URL the caller already resolved).
	FindCommonOutgoing(ctx context.Context, peer string) ([]CommitID, error)
}
