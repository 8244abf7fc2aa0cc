package release

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewDatasetReleaseID builds a human-scannable release identifier:
// "{distro}-{gitsha7}-m{mandocVersion}-{uuid8}". The uuid suffix keeps
// re-runs of the same inputs distinct.
func NewDatasetReleaseID(distro, gitSHA, mandocVersion string) string {
	sha := strings.TrimSpace(gitSHA)
	if sha == "" {
		sha = "dev"
	}
	if len(sha) > 7 {
		sha = sha[:7]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-m%s-%s", distro, sha, mandocVersion, suffix)
}

// ContentHash returns the hex sha256 of normalized rendered HTML. Two
// pages with byte-identical normalized content hash identically, which
// is what deduplication and change detection key on.
func ContentHash(normalizedHTML string) string {
	sum := sha256.Sum256([]byte(normalizedHTML))
	return hex.EncodeToString(sum[:])
}
