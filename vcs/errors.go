package vcs

import "errors"

var errShortHex = errors.New("vcs: wrong length for a commit id")
