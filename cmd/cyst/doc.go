// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// The cyst command seals files under factor-tree policies: nested
// all(...)/any(...) combinations of passphrases, keyfiles, and age
// identities. Encryption generates a fresh data encryption key,
// streams the payload under it, and stores the key sealed in a policy
// envelope at the head of the container file. Decryption recovers the
// key from any satisfiable subset of factors.
package main
